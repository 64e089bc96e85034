package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loopstack/pipeline/internal/codeutil"
	"github.com/loopstack/pipeline/internal/governance"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/scenario"
)

// maxIdentificationWorkers bounds how many chunks are analyzed concurrently,
// regardless of how many chunks a codebase produces.
const maxIdentificationWorkers = 5

type identificationResponse struct {
	TestScenarios []struct {
		ScenarioDescription string `json:"scenario_description"`
		Priority            string `json:"priority"`
	} `json:"test_scenarios"`
}

// IdentificationAgent turns a codebase's chunked source into a deduplicated
// set of candidate test scenarios, issuing one LLM call per chunk in
// parallel.
type IdentificationAgent struct {
	Gateway *Gateway
	Gov     *governance.Log
	Logger  logutil.LoggerInterface
}

// Run analyzes chunks concurrently (capped at maxIdentificationWorkers) and
// returns the deduplicated union of every chunk's reported scenarios. A
// chunk whose response can't be parsed contributes nothing and is logged as
// a governance failure rather than aborting the whole run.
func (a *IdentificationAgent) Run(ctx context.Context, fileList []string, chunks []string) []scenario.Scenario {
	set := scenario.NewSet()
	var mu sync.Mutex

	workers := maxIdentificationWorkers
	if len(chunks) < workers {
		workers = len(chunks)
	}
	if workers == 0 {
		return set.Items()
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, chunk string) {
			defer wg.Done()
			defer func() { <-sem }()

			scenarios := a.processChunk(ctx, fileList, chunk, index)

			mu.Lock()
			for _, s := range scenarios {
				set.Add(s)
			}
			mu.Unlock()
		}(i, chunk)
	}
	wg.Wait()

	return set.Items()
}

func (a *IdentificationAgent) processChunk(ctx context.Context, fileList []string, chunk string, index int) []scenario.Scenario {
	user := fmt.Sprintf("Files under analysis: %v\n\nCode chunk:\n%s\n\nRespond with JSON containing test_scenarios.", fileList, chunk)

	content, model, isFallback, err := a.Gateway.Call(ctx, "identification", identificationSystemPrompt, user, 0.3)
	if a.Gov != nil {
		a.Gov.LogDecision("identification", "analyze_chunk", fmt.Sprintf("chunk %d", index), decisionConfidence(isFallback), map[string]interface{}{
			"model":       model,
			"is_fallback": isFallback,
		})
	}
	if err != nil {
		if a.Logger != nil {
			a.Logger.WarnContext(ctx, "chunk %d: identification call failed: %v", index, err)
		}
		if a.Gov != nil {
			a.Gov.LogFailure(ErrorKindLLMExhausted.String(), err.Error(), index)
		}
		return nil
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "chunk %d: identification responded via %s (fallback=%t)", index, model, isFallback)
	}

	cleaned := codeutil.Sanitize(content)
	var resp identificationResponse
	if jsonErr := json.Unmarshal([]byte(cleaned), &resp); jsonErr != nil {
		if a.Gov != nil {
			a.Gov.LogFailure(ErrorKindParseError.String(), jsonErr.Error(), index)
		}
		return nil
	}

	scenarios := make([]scenario.Scenario, 0, len(resp.TestScenarios))
	for _, raw := range resp.TestScenarios {
		if raw.ScenarioDescription == "" {
			continue
		}
		scenarios = append(scenarios, scenario.New(raw.ScenarioDescription, raw.Priority))
	}
	return scenarios
}
