package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopstack/pipeline/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T, content string, err error) *llm.MockLLMClient {
	t.Helper()
	return &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			if err != nil {
				return nil, err
			}
			return &llm.ProviderResult{Content: content}, nil
		},
	}
}

func TestGateway_Call_UsesFirstAdmittedCandidate(t *testing.T) {
	gw := NewGateway([]GatewayCandidate{
		{Model: "model-a", Client: newMockClient(t, "hello", nil), RPM: 0},
	})
	content, model, isFallback, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "model-a", model)
	assert.False(t, isFallback)
}

func TestGateway_Call_FallsBackWhenFirstCandidateErrors(t *testing.T) {
	failing := newMockClient(t, "", errors.New("rate limited"))
	working := newMockClient(t, "fallback content", nil)

	gw := NewGateway([]GatewayCandidate{
		{Model: "model-a", Client: failing, RPM: 0},
		{Model: "model-b", Client: working, RPM: 0},
	})
	content, model, isFallback, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.NoError(t, err)
	assert.Equal(t, "fallback content", content)
	assert.Equal(t, "model-b", model)
	assert.True(t, isFallback)
}

func TestGateway_Call_ExhaustedWhenAllCandidatesFail(t *testing.T) {
	gw := NewGateway([]GatewayCandidate{
		{Model: "model-a", Client: newMockClient(t, "", errors.New("down")), RPM: 0},
		{Model: "model-b", Client: newMockClient(t, "", errors.New("down")), RPM: 0},
	})
	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.Error(t, err)
	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, ErrorKindLLMExhausted, pipelineErr.Kind)
}

func TestGateway_Call_SkipsCandidateOverItsRPMBudget(t *testing.T) {
	var calls int32
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			atomic.AddInt32(&calls, 1)
			return &llm.ProviderResult{Content: "ok"}, nil
		},
	}
	// rpm=1 admits at most floor(1*0.8)=1 call per minute, so the second call
	// in the same window should find this candidate unadmitted.
	gw := NewGateway([]GatewayCandidate{{Model: "tight", Client: client, RPM: 1}})
	gw.sleep = func(time.Duration) {}

	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.NoError(t, err)

	_, _, _, err = gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGateway_Call_TripsBreakerAfterRepeatedFailuresAndSkipsCandidate(t *testing.T) {
	var failingCalls int32
	failing := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			atomic.AddInt32(&failingCalls, 1)
			return nil, errors.New("down")
		},
	}
	gw := NewGateway([]GatewayCandidate{{Model: "model-a", Client: failing, RPM: 0}})

	// drive the candidate past CircuitBreakerFailureThreshold (5) failures
	for i := 0; i < 5; i++ {
		_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
		require.Error(t, err)
	}
	assert.EqualValues(t, 5, atomic.LoadInt32(&failingCalls))

	// breaker is now open and within its cooldown, so the next call skips
	// the candidate entirely rather than invoking the client again
	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.Error(t, err)
	assert.EqualValues(t, 5, atomic.LoadInt32(&failingCalls))
}

func TestGateway_Records_CapturesSuccessfulCalls(t *testing.T) {
	gw := NewGateway([]GatewayCandidate{{Model: "model-a", Client: newMockClient(t, "content", nil), RPM: 0}})
	_, _, _, err := gw.Call(context.Background(), "evaluation", "sys", "user prompt", 0.2)
	require.NoError(t, err)

	records := gw.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "evaluation", records[0].Agent)
	assert.Equal(t, "model-a", records[0].Model)
	assert.Equal(t, "content", records[0].Response)
	assert.False(t, records[0].IsFallback)
}

func TestGateway_Call_RejectsCandidateWhosePromptExceedsItsContextWindow(t *testing.T) {
	client := newMockClient(t, "should never be called", nil)
	gw := NewGateway([]GatewayCandidate{{Model: "tiny", Client: client, ContextWindow: 4}})

	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "a fairly long user prompt that won't fit", 0.3)
	require.Error(t, err)
	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, ErrorKindLLMExhausted, pipelineErr.Kind)
}

func TestGateway_Call_SkipsCandidateOverItsTPMBudget(t *testing.T) {
	var calls int32
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			atomic.AddInt32(&calls, 1)
			return &llm.ProviderResult{Content: "ok", TokenCount: 1000}, nil
		},
	}
	// a TPM budget far smaller than the first call's recorded usage means the
	// second call's estimate can never fit within the 80% margin.
	gw := NewGateway([]GatewayCandidate{{Model: "low-tpm", Client: client, TPM: 1000}})
	gw.sleep = func(time.Duration) {}

	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.NoError(t, err)

	_, _, _, err = gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGateway_Call_CoolsDownCandidateAfterFailureBeforeNextAttempt(t *testing.T) {
	llmErr := &llm.LLMError{Provider: "test", ErrorCategory: llm.CategoryRateLimit, Message: "rate limited"}
	var calls int32
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			atomic.AddInt32(&calls, 1)
			return nil, llmErr
		},
	}
	gw := NewGateway([]GatewayCandidate{{Model: "model-a", Client: client, RPM: 0}})

	_, _, _, err := gw.Call(context.Background(), "identification", "sys", "user", 0.3)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	gw.mu.Lock()
	until := gw.candidates[0].cooldownUntil
	gw.mu.Unlock()
	assert.True(t, until.After(time.Now()))
	assert.True(t, until.Sub(time.Now()) <= cooldownRateLimit)
}

func TestGateway_AsLLMClient_RoutesThroughGateway(t *testing.T) {
	gw := NewGateway([]GatewayCandidate{{Model: "model-a", Client: newMockClient(t, "dep content", nil), RPM: 0}})
	adapter := gw.AsLLMClient()

	result, err := adapter.GenerateContent(context.Background(), "some prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "dep content", result.Content)

	records := gw.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "dependency", records[0].Agent)
}
