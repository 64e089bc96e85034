package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loopstack/pipeline/internal/codeutil"
	"github.com/loopstack/pipeline/internal/governance"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/mutation"
	"github.com/loopstack/pipeline/internal/testrunner"
)

// rawEvaluationResponse mirrors what the LLM is asked to return, kept
// separate from EvaluationOutput because security_issues sometimes arrives
// as a bare list instead of the documented object shape.
type rawEvaluationResponse struct {
	ExecutionSummary struct {
		Total  int `json:"total_tests"`
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	} `json:"execution_summary"`
	CodeCoveragePercentage    float64         `json:"code_coverage_percentage"`
	MutationScore             float64         `json:"mutation_score"`
	ActionableRecommendations []string        `json:"actionable_recommendations"`
	SecurityIssues            json.RawMessage `json:"security_issues"`
	HasSevereSecurityIssues   bool            `json:"has_severe_security_issues"`
}

// EvaluationAgent asks the LLM to assess a test run's results and flag
// security issues, then overrides every measured field (coverage, mutation
// score, execution counts) with the values the pipeline itself measured, so
// a hallucinated number can never pass through.
type EvaluationAgent struct {
	Gateway *Gateway
	Gov     *governance.Log
	Logger  logutil.LoggerInterface
}

// Run builds the evaluation prompt from a test result and returns the
// EvaluationOutput with measured values substituted in. If the LLM response
// can't be parsed at all, a degenerate output is returned carrying only the
// measured values and a single diagnostic recommendation, so a parse
// failure never hides the iteration's true standing.
func (a *EvaluationAgent) Run(ctx context.Context, result testrunner.Result, scenarioSummary string) EvaluationOutput {
	user := fmt.Sprintf(
		"Scenario summary:\n%s\n\nTest output:\n%s\n\nExecution summary: %d total, %d passed, %d failed\n\nMeasured coverage: %.1f%%\n\nMutation feedback:\n%s\n\nRespond with the evaluation JSON.",
		scenarioSummary, result.Output,
		result.Summary.Total, result.Summary.Passed, result.Summary.Failed,
		result.CoveragePercent,
		mutation.FormatFeedback(result.MutationReport),
	)

	content, model, isFallback, err := a.Gateway.Call(ctx, "evaluation", evaluationSystemPrompt, user, 0.2)
	if a.Gov != nil {
		a.Gov.LogDecision("evaluation", "evaluate", "assess iteration result", decisionConfidence(isFallback), map[string]interface{}{
			"model":       model,
			"is_fallback": isFallback,
		})
	}

	measured := measuredOutput(result)
	if err != nil {
		if a.Logger != nil {
			a.Logger.WarnContext(ctx, "evaluation call failed: %v", err)
		}
		measured.ActionableRecommendations = []string{"evaluation call failed: " + err.Error()}
		return measured
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "evaluation responded via %s (fallback=%t)", model, isFallback)
	}

	cleaned := codeutil.Sanitize(content)
	var raw rawEvaluationResponse
	if jsonErr := json.Unmarshal([]byte(cleaned), &raw); jsonErr != nil {
		if a.Gov != nil {
			a.Gov.LogFailure(ErrorKindParseError.String(), jsonErr.Error(), 0)
		}
		measured.ActionableRecommendations = []string{"evaluation response could not be parsed"}
		return measured
	}

	issues := parseSecurityIssues(raw.SecurityIssues)

	out := measured
	out.ActionableRecommendations = raw.ActionableRecommendations
	out.SecurityIssues = issues
	out.HasSevereSecurityIssues = raw.HasSevereSecurityIssues || HasSevere(issues)
	return out
}

// measuredOutput builds an EvaluationOutput carrying only values the
// pipeline itself measured, with no LLM-sourced fields populated yet.
func measuredOutput(result testrunner.Result) EvaluationOutput {
	return EvaluationOutput{
		ExecutionSummary: ExecutionSummary{
			Total:  result.Summary.Total,
			Passed: result.Summary.Passed,
			Failed: result.Summary.Failed,
		},
		CodeCoveragePercentage: result.CoveragePercent,
		MutationScore:          result.MutationScore,
	}
}

// parseSecurityIssues accepts either the documented list-of-objects shape
// or a bare list of strings, matching the reference pipeline's tolerance
// for the LLM returning a plain list instead of the requested object
// fields. Entries that are neither are dropped rather than rejecting the
// whole response.
func parseSecurityIssues(raw json.RawMessage) []SecurityIssue {
	if len(raw) == 0 {
		return nil
	}

	var structured []SecurityIssue
	if err := json.Unmarshal(raw, &structured); err == nil {
		return structured
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		issues := make([]SecurityIssue, 0, len(strs))
		for _, s := range strs {
			if s == "" {
				continue
			}
			issues = append(issues, SecurityIssue{Severity: "medium", Issue: s})
		}
		return issues
	}

	return nil
}
