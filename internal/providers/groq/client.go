package groq

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/loopstack/pipeline/internal/llm"
	"github.com/loopstack/pipeline/internal/logutil"
)

// defaultBaseURL is Groq's OpenAI-compatible endpoint.
const defaultBaseURL = "https://api.groq.com/openai/v1"

// maxRetryAttempts bounds the key-rotation retry loop, mirroring the
// reference pipeline's 20-attempt retry budget before giving up.
const maxRetryAttempts = 20

// groqClient implements llm.LLMClient for Groq, routing chat completions
// through the OpenAI-compatible API with per-model rate limiting and
// multi-key rotation.
type groqClient struct {
	modelID string
	keys    *KeyRotator
	limiter *Limiter
	logger  logutil.LoggerInterface
	baseURL string

	temperature      *float64
	topP             *float64
	presencePenalty  *float64
	frequencyPenalty *float64
	maxTokens        *int
}

// NewClient creates a Groq client for modelID. apiKey, if non-empty, pins
// the client to a single key; otherwise all GROQ_API_KEY* environment
// variables are discovered and rotated across.
func NewClient(apiKey, modelID, apiEndpoint string, logger logutil.LoggerInterface, limiter *Limiter) (llm.LLMClient, error) {
	if modelID == "" {
		return nil, CreateAPIError(llm.CategoryInvalidRequest, "model ID cannot be empty", nil, "")
	}

	rotator := NewKeyRotator(apiKey)
	if rotator.Empty() {
		return nil, CreateAPIError(
			llm.CategoryAuth,
			"no Groq API keys configured",
			nil,
			"set GROQ_API_KEY (optionally GROQ_API_KEY2, GROQ_API_KEY3, ...)",
		)
	}

	baseURL := apiEndpoint
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if limiter == nil {
		limiter = NewLimiter()
	}

	return &groqClient{
		modelID: modelID,
		keys:    rotator,
		limiter: limiter,
		logger:  logger,
		baseURL: baseURL,
	}, nil
}

func (c *groqClient) newAPIClient(apiKey string) openai.Client {
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(c.baseURL),
	)
}

// GenerateContent sends prompt to Groq, retrying with key rotation and
// cooldown backoff when the per-model rate limit or a transient error is hit.
func (c *groqClient) GenerateContent(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
	if prompt == "" {
		return nil, CreateAPIError(llm.CategoryInvalidRequest, "prompt cannot be empty", nil, "")
	}

	c.applyParams(params)
	estimatedTokens := int32(len(prompt) / 4)

	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		ok, wait := c.limiter.CanRequest(c.modelID, estimatedTokens)
		if !ok {
			select {
			case <-ctx.Done():
				return nil, CreateAPIError(llm.CategoryCancelled, "context cancelled while waiting for rate limit", ctx.Err(), "")
			case <-time.After(wait):
			}
			continue
		}

		apiKey, err := c.keys.Next()
		if err != nil {
			return nil, CreateAPIError(llm.CategoryAuth, err.Error(), err, "")
		}

		apiClient := c.newAPIClient(apiKey)
		completionParams, err := c.buildParams(prompt)
		if err != nil {
			return nil, err
		}

		completion, err := apiClient.Chat.Completions.New(ctx, *completionParams)
		if err != nil {
			lastErr = FormatAPIError(err, 0)
			if llm.IsRateLimit(lastErr) {
				c.limiter.SetCooldown(c.modelID, 30*time.Second)
				continue
			}
			if llm.IsServer(lastErr) {
				c.limiter.SetCooldown(c.modelID, 15*time.Second)
				continue
			}
			return nil, lastErr
		}

		if len(completion.Choices) == 0 {
			return nil, CreateAPIError(llm.CategoryServer, "Groq API returned an empty response", nil, "")
		}

		usedTokens := int32(completion.Usage.TotalTokens)
		if usedTokens == 0 {
			usedTokens = estimatedTokens
		}
		c.limiter.Record(c.modelID, usedTokens)

		content := completion.Choices[0].Message.Content
		finishReason := string(completion.Choices[0].FinishReason)

		return &llm.ProviderResult{
			Content:      content,
			FinishReason: finishReason,
			TokenCount:   int32(completion.Usage.CompletionTokens),
			Truncated:    finishReason == "length",
		}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, CreateAPIError(llm.CategoryRateLimit, fmt.Sprintf("exceeded %d retry attempts against Groq rate limits", maxRetryAttempts), nil, "")
}

func (c *groqClient) buildParams(prompt string) (*openai.ChatCompletionNewParams, error) {
	params := &openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.modelID,
	}

	if c.temperature != nil {
		if *c.temperature < 0.0 || *c.temperature > 2.0 {
			return nil, CreateAPIError(llm.CategoryInvalidRequest, fmt.Sprintf("temperature must be between 0.0 and 2.0, got %f", *c.temperature), nil, "")
		}
		params.Temperature = openai.Float(*c.temperature)
	}
	if c.topP != nil {
		if *c.topP < 0.0 || *c.topP > 1.0 {
			return nil, CreateAPIError(llm.CategoryInvalidRequest, fmt.Sprintf("top_p must be between 0.0 and 1.0, got %f", *c.topP), nil, "")
		}
		params.TopP = openai.Float(*c.topP)
	}
	if c.maxTokens != nil {
		if *c.maxTokens <= 0 {
			return nil, CreateAPIError(llm.CategoryInvalidRequest, fmt.Sprintf("max_tokens must be positive, got %d", *c.maxTokens), nil, "")
		}
		params.MaxTokens = openai.Int(int64(*c.maxTokens))
	}
	if c.frequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*c.frequencyPenalty)
	}
	if c.presencePenalty != nil {
		params.PresencePenalty = openai.Float(*c.presencePenalty)
	}

	return params, nil
}

func (c *groqClient) applyParams(params map[string]interface{}) {
	if params == nil {
		return
	}
	if v, ok := toFloat64(params["temperature"]); ok {
		c.temperature = &v
	}
	if v, ok := toFloat64(params["top_p"]); ok {
		c.topP = &v
	}
	if v, ok := toFloat64(params["frequency_penalty"]); ok {
		c.frequencyPenalty = &v
	}
	if v, ok := toFloat64(params["presence_penalty"]); ok {
		c.presencePenalty = &v
	}
	if v, ok := toInt(params["max_tokens"]); ok {
		c.maxTokens = &v
	} else if v, ok := toInt(params["max_output_tokens"]); ok {
		c.maxTokens = &v
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// CountTokens estimates the token count for prompt using the same
// ~4-characters-per-token heuristic the reference pipeline uses to budget
// prompt truncation, since Groq's hosted OSS models have no official Go
// tokenizer.
func (c *groqClient) CountTokens(ctx context.Context, prompt string) (*llm.ProviderTokenCount, error) {
	return &llm.ProviderTokenCount{Total: int32(len(prompt) / 4)}, nil
}

// GetModelInfo reports the context window and output limit from the model
// spec table.
func (c *groqClient) GetModelInfo(ctx context.Context) (*llm.ProviderModelInfo, error) {
	spec := getModelSpec(c.modelID)
	return &llm.ProviderModelInfo{
		Name:             c.modelID,
		InputTokenLimit:  spec.ContextWindow,
		OutputTokenLimit: spec.MaxOutputTokens,
	}, nil
}

// GetModelName returns the model ID being used.
func (c *groqClient) GetModelName() string {
	return c.modelID
}

// Close releases resources used by the client. The openai-go client has no
// explicit teardown.
func (c *groqClient) Close() error {
	return nil
}

// SetTemperature sets the default temperature parameter.
func (c *groqClient) SetTemperature(temp float32) {
	v := float64(temp)
	c.temperature = &v
}

// SetTopP sets the default top_p parameter.
func (c *groqClient) SetTopP(topP float32) {
	v := float64(topP)
	c.topP = &v
}

// SetMaxOutputTokens sets the default max_tokens parameter.
func (c *groqClient) SetMaxOutputTokens(tokens int32) {
	v := int(tokens)
	c.maxTokens = &v
}
