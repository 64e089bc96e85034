package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loopstack/pipeline/internal/cli"
	"github.com/loopstack/pipeline/internal/llm"
)

// gatewayMaxRounds bounds how many times Call sweeps every candidate before
// giving up when none admits a request. Each round that finds nothing
// admittable sleeps up to gatewaySpinCap and tries again.
const gatewayMaxRounds = 20

// gatewaySpinCap is the longest Call will sleep between admission sweeps.
const gatewaySpinCap = 30 * time.Second

// gatewayRPMFraction and gatewayTPMFraction are the conservative margins
// held back from a model's published RPM/TPM limits before a request is
// turned away, matching the 80% threshold the Groq limiter uses.
const gatewayRPMFraction = 0.8
const gatewayTPMFraction = 0.8

// gatewayContextFraction is the share of a model's context window a single
// request's estimated input may occupy before the gateway refuses to even
// attempt it on that candidate.
const gatewayContextFraction = 0.9

// Cooldown durations applied to a candidate after a failed call, keyed by
// how the provider's error is classified. A rate-limit response backs the
// model off longest since the provider is explicitly asking for a pause; a
// generic provider error gets a short cooldown so transient failures don't
// wedge a candidate out for long; an oversized-payload error gets the
// longest cooldown since retrying the same prompt against the same model
// will only fail the same way again.
const (
	cooldownRateLimit     = 120 * time.Second
	cooldownProviderError = 20 * time.Second
	cooldownPayloadTooBig = 300 * time.Second
)

type tokenSample struct {
	at     time.Time
	tokens int32
}

// candidate is one model the gateway may route a call to, along with the
// rolling request/token windows and circuit breaker that gate admission.
type candidate struct {
	model         string
	client        llm.LLMClient
	rpm           int32
	tpm           int32
	contextWindow int32
	breaker       *cli.CircuitBreaker

	requestTimes  []time.Time
	tokenUsage    []tokenSample
	cooldownUntil time.Time
}

// GatewayCandidate is the caller-facing form of candidate, used to build a
// Gateway from outside the package (main wires one per resolvable model).
// RPM, TPM, and ContextWindow of zero mean "no published limit known" and
// skip that particular admission check for the candidate.
type GatewayCandidate struct {
	Model         string
	Client        llm.LLMClient
	RPM           int32
	TPM           int32
	ContextWindow int32
}

// Gateway pools several candidate models behind a single call, round-robin
// across them and admitting requests against each model's own rolling RPM
// and TPM budgets plus its context-window capacity, so a single exhausted
// model degrades the pipeline instead of stalling it. This sits above the
// single-provider llm.LLMClient the registry hands out: each candidate
// keeps that provider's own rate-limiting (groq.Limiter, the token-bucket
// gemini client uses) intact, and the gateway only adds an outer admission
// check so it can skip a throttled model rather than wait on it. Each
// candidate also carries its own circuit breaker: a model that keeps
// failing trips open and is skipped for a cooldown period rather than
// retried every call. When every candidate is unavailable, Call sleeps and
// retries rather than failing on the first sweep.
type Gateway struct {
	mu         sync.Mutex
	candidates []candidate
	next       int
	records    []PromptRecord
	tokens     *tokenCounter

	// sleep backs the retry loop's pause between sweeps; overridable in
	// tests so they don't wait out real cooldowns.
	sleep func(time.Duration)
}

// NewGateway builds a Gateway over candidates in priority order; Call tries
// them starting from a rotating offset so repeated calls spread load across
// all of them rather than always preferring the first.
func NewGateway(candidates []GatewayCandidate) *Gateway {
	cs := make([]candidate, len(candidates))
	for i, c := range candidates {
		cs[i] = candidate{
			model:         c.Model,
			client:        c.Client,
			rpm:           c.RPM,
			tpm:           c.TPM,
			contextWindow: c.ContextWindow,
			breaker:       cli.NewCircuitBreaker(),
		}
	}
	return &Gateway{
		candidates: cs,
		tokens:     newTokenCounter(),
		sleep:      time.Sleep,
	}
}

// ErrNoCredentials is returned by callers that could not resolve API
// credentials for any candidate model, so a Gateway was never built.
var ErrNoCredentials = newError(ErrorKindConfigMissing, "no model credentials available")

// Records returns every prompt/response pair recorded so far, in the order
// responses were received (not the order calls were dispatched), matching
// how concurrent identification calls complete.
func (g *Gateway) Records() []PromptRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PromptRecord, len(g.records))
	copy(out, g.records)
	return out
}

// admitResult reports whether a candidate may take a request right now. A
// positive wait means try again after roughly that long; permanent means
// the request can never fit this candidate no matter how long the caller
// waits (its estimated size alone exceeds the model's context budget).
type admitResult struct {
	ok        bool
	permanent bool
	wait      time.Duration
}

// admit applies the context-window budget, RPM window, and TPM window
// checks for one candidate against a request estimated to need
// estimatedTokens tokens of input, in that order: a request too big for the
// model is rejected before either rolling window is even consulted.
func (g *Gateway) admit(c *candidate, estimatedTokens int32) admitResult {
	now := time.Now()

	if now.Before(c.cooldownUntil) {
		return admitResult{wait: c.cooldownUntil.Sub(now)}
	}

	if c.contextWindow > 0 {
		limit := int32(float64(c.contextWindow) * gatewayContextFraction)
		if estimatedTokens > limit {
			return admitResult{permanent: true}
		}
	}

	cutoff := now.Add(-time.Minute)
	c.requestTimes = pruneRequestTimes(c.requestTimes, cutoff)
	c.tokenUsage = pruneTokenUsage(c.tokenUsage, cutoff)

	if c.rpm > 0 {
		limit := int(float64(c.rpm) * gatewayRPMFraction)
		if limit < 1 {
			limit = 1
		}
		if len(c.requestTimes) >= limit {
			return admitResult{wait: time.Minute / time.Duration(max1Int32(c.rpm))}
		}
	}

	if c.tpm > 0 {
		var used int32
		for _, s := range c.tokenUsage {
			used += s.tokens
		}
		limit := int32(float64(c.tpm) * gatewayTPMFraction)
		if used+estimatedTokens >= limit {
			return admitResult{wait: 5 * time.Second}
		}
	}

	return admitResult{ok: true}
}

func pruneRequestTimes(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func pruneTokenUsage(samples []tokenSample, cutoff time.Time) []tokenSample {
	kept := samples[:0]
	for _, s := range samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// classifyCooldown maps a failed call's error to how long its candidate
// should be held back, matching the provider's own signal about the
// failure: an oversized-payload error gets the longest cooldown since the
// same prompt will fail the same way again immediately, a rate-limit
// response is capped at cooldownRateLimit since the provider is explicitly
// asking for a pause, and anything else gets a short generic cooldown.
func classifyCooldown(err error) time.Duration {
	var le *llm.LLMError
	if errors.As(err, &le) {
		if le.StatusCode == 413 || le.ErrorCategory == llm.CategoryInputLimit {
			return cooldownPayloadTooBig
		}
		if le.ErrorCategory == llm.CategoryRateLimit {
			return cooldownRateLimit
		}
	}
	return cooldownProviderError
}

// Call routes one LLM request through the candidate list in priority order,
// starting from the next candidate after whichever one answered last time
// so load spreads across every admitting candidate rather than always
// preferring the first. A candidate is skipped outright while its circuit
// breaker is open; otherwise it's asked to admit the request against its
// context-window, RPM, and TPM budgets. If no candidate admits this round,
// Call sleeps until the nearest candidate's estimated wait (capped at
// gatewaySpinCap) and sweeps again, giving up after gatewayMaxRounds rounds
// with no admission, or immediately if every candidate's refusal is
// permanent (the request can never fit any of them).
func (g *Gateway) Call(ctx context.Context, agent, system, user string, temperature float64) (content string, model string, isFallback bool, err error) {
	prompt := system + "\n\n" + user
	params := map[string]interface{}{"temperature": temperature}

	if len(g.candidates) == 0 {
		return "", "", false, ErrNoCredentials
	}

	var lastErr error
	for round := 0; round < gatewayMaxRounds; round++ {
		g.mu.Lock()
		start := g.next
		g.mu.Unlock()

		attempted := false
		allPermanent := true
		minWait := gatewaySpinCap

		for i := 0; i < len(g.candidates); i++ {
			idx := (start + i) % len(g.candidates)
			c := &g.candidates[idx]

			if !c.breaker.CanExecute() {
				allPermanent = false
				continue
			}

			estimated, _ := g.tokens.count(prompt, c.model)

			g.mu.Lock()
			res := g.admit(c, int32(estimated))
			if res.ok {
				c.requestTimes = append(c.requestTimes, time.Now())
			}
			g.mu.Unlock()

			if !res.ok {
				if !res.permanent {
					allPermanent = false
					if res.wait < minWait {
						minWait = res.wait
					}
				}
				continue
			}
			allPermanent = false
			attempted = true

			result, callErr := c.client.GenerateContent(ctx, prompt, params)
			if callErr != nil {
				c.breaker.RecordFailure()
				g.mu.Lock()
				c.cooldownUntil = time.Now().Add(classifyCooldown(callErr))
				g.mu.Unlock()
				lastErr = callErr
				continue
			}
			c.breaker.RecordSuccess()

			used := int32(estimated)
			if result.TokenCount > 0 {
				used = result.TokenCount
			}

			fallback := i > 0
			g.mu.Lock()
			c.tokenUsage = append(c.tokenUsage, tokenSample{at: time.Now(), tokens: used})
			g.next = (idx + 1) % len(g.candidates)
			g.records = append(g.records, PromptRecord{
				Timestamp:  time.Now(),
				Agent:      agent,
				Model:      c.model,
				System:     system,
				User:       user,
				Response:   result.Content,
				IsFallback: fallback,
			})
			g.mu.Unlock()

			return result.Content, c.model, fallback, nil
		}

		// At least one candidate was actually called and failed this round:
		// that's a real exhaustion, not a throttling condition, so it's
		// reported immediately rather than spent waiting for a cooldown to
		// pass on a request that's already been tried and refused.
		if attempted {
			break
		}
		if allPermanent {
			break
		}

		select {
		case <-ctx.Done():
			return "", "", false, ctx.Err()
		default:
		}
		g.sleep(minWait)
	}

	if lastErr != nil {
		return "", "", false, newError(ErrorKindLLMExhausted, lastErr.Error())
	}
	return "", "", false, newError(ErrorKindLLMExhausted, "no candidate model admitted the request within the retry budget")
}

// llmAdapter exposes a Gateway as a single llm.LLMClient, letting the
// dependency resolver and other components that were built against that
// interface route their calls through the same admission-pooled gateway
// the agents use, instead of needing a gateway-aware variant of their own.
type llmAdapter struct {
	gw *Gateway
}

// AsLLMClient returns an llm.LLMClient backed by g.
func (g *Gateway) AsLLMClient() llm.LLMClient {
	return &llmAdapter{gw: g}
}

func (a *llmAdapter) GenerateContent(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
	temperature := 0.3
	if params != nil {
		if t, ok := params["temperature"].(float64); ok {
			temperature = t
		}
	}
	content, _, _, err := a.gw.Call(ctx, "dependency", "", prompt, temperature)
	if err != nil {
		return nil, err
	}
	return &llm.ProviderResult{Content: content}, nil
}

func (a *llmAdapter) CountTokens(_ context.Context, prompt string) (*llm.ProviderTokenCount, error) {
	model := "gpt-4o"
	if len(a.gw.candidates) > 0 {
		model = a.gw.candidates[0].model
	}
	n, err := a.gw.tokens.count(prompt, model)
	if err != nil {
		return &llm.ProviderTokenCount{Total: int32(len(prompt) / 4)}, nil
	}
	return &llm.ProviderTokenCount{Total: int32(n)}, nil
}

func (a *llmAdapter) GetModelInfo(_ context.Context) (*llm.ProviderModelInfo, error) {
	return &llm.ProviderModelInfo{Name: "gateway"}, nil
}

func (a *llmAdapter) GetModelName() string { return "gateway" }

func (a *llmAdapter) Close() error { return nil }

func max1Int32(n int32) int32 {
	if n < 1 {
		return 1
	}
	return n
}
