package groq

import (
	"sync"
	"time"
)

// modelWindow tracks recent request/token history for one model so the
// limiter can enforce Groq's per-minute RPM and TPM caps without a strict
// token-bucket (request cost in tokens isn't known until after the call).
type modelWindow struct {
	requestTimes []time.Time
	tokenUsage   []tokenSample
	cooldownTill time.Time
}

type tokenSample struct {
	at     time.Time
	tokens int32
}

// Limiter enforces per-model RPM/TPM limits and cooldowns for Groq, mirroring
// the rolling-window accounting of the Python pipeline's rate limiter.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*modelWindow
	// threshold is the fraction of the published limit allowed before a
	// request is held back, matching the conservative 80% margin used by
	// the reference rate limiter.
	threshold float64
}

// NewLimiter creates a Limiter using the conservative default threshold.
func NewLimiter() *Limiter {
	return &Limiter{
		windows:   make(map[string]*modelWindow),
		threshold: 0.8,
	}
}

func (l *Limiter) window(model string) *modelWindow {
	w, ok := l.windows[model]
	if !ok {
		w = &modelWindow{}
		l.windows[model] = w
	}
	return w
}

// CanRequest reports whether a request estimated to use estimatedTokens
// tokens may proceed now for model, and if not, how long to wait.
func (l *Limiter) CanRequest(model string, estimatedTokens int32) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	spec := getModelSpec(model)
	w := l.window(model)
	now := time.Now()

	if now.Before(w.cooldownTill) {
		return false, w.cooldownTill.Sub(now)
	}

	cutoff := now.Add(-time.Minute)
	w.requestTimes = pruneRequestTimes(w.requestTimes, cutoff)
	w.tokenUsage = pruneTokenSamples(w.tokenUsage, cutoff)

	rpmLimit := int(float64(spec.RequestsPerMinute) * l.threshold)
	if len(w.requestTimes) >= rpmLimit {
		return false, time.Minute / time.Duration(max1(spec.RequestsPerMinute))
	}

	var tokensUsed int32
	for _, s := range w.tokenUsage {
		tokensUsed += s.tokens
	}
	tpmLimit := int32(float64(spec.TokensPerMinute) * l.threshold)
	if tokensUsed+estimatedTokens > tpmLimit {
		return false, time.Second * 5
	}

	return true, 0
}

// Record registers a completed request's token usage against model's window.
func (l *Limiter) Record(model string, tokens int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w := l.window(model)
	w.requestTimes = append(w.requestTimes, now)
	w.tokenUsage = append(w.tokenUsage, tokenSample{at: now, tokens: tokens})
}

// SetCooldown blocks further requests to model for the given duration,
// used after a 429 response reports a specific retry-after window.
func (l *Limiter) SetCooldown(model string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.window(model)
	until := time.Now().Add(d)
	if until.After(w.cooldownTill) {
		w.cooldownTill = until
	}
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

func pruneTokenSamples(samples []tokenSample, cutoff time.Time) []tokenSample {
	kept := samples[:0]
	for _, s := range samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

func max1(n int32) int32 {
	if n < 1 {
		return 1
	}
	return n
}
