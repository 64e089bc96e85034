// Package groq provides the implementation of the Groq LLM provider.
// Groq's chat completions API is OpenAI-wire-compatible, so the client
// reuses the openai-go SDK pointed at Groq's base URL.
package groq

// ModelSpec describes the context window, output limit, and per-model rate
// limits published for a Groq model.
type ModelSpec struct {
	ContextWindow     int32
	MaxOutputTokens   int32
	RequestsPerMinute int32
	TokensPerMinute   int32
}

// modelSpecs mirrors Groq's published per-model limits.
var modelSpecs = map[string]ModelSpec{
	"openai/gpt-oss-120b": {
		ContextWindow:     131072,
		MaxOutputTokens:   32768,
		RequestsPerMinute: 30,
		TokensPerMinute:   8000,
	},
	"openai/gpt-oss-20b": {
		ContextWindow:     131072,
		MaxOutputTokens:   32768,
		RequestsPerMinute: 30,
		TokensPerMinute:   8000,
	},
	"meta-llama/llama-4-maverick-17b-128e-instruct": {
		ContextWindow:     131072,
		MaxOutputTokens:   8192,
		RequestsPerMinute: 30,
		TokensPerMinute:   6000,
	},
	"meta-llama/llama-4-scout-17b-16e-instruct": {
		ContextWindow:     131072,
		MaxOutputTokens:   8192,
		RequestsPerMinute: 30,
		TokensPerMinute:   30000,
	},
	"moonshotai/kimi-k2-instruct-0905": {
		ContextWindow:     131072,
		MaxOutputTokens:   16384,
		RequestsPerMinute: 30,
		TokensPerMinute:   10000,
	},
	"moonshotai/kimi-k2-instruct": {
		ContextWindow:     131072,
		MaxOutputTokens:   16384,
		RequestsPerMinute: 30,
		TokensPerMinute:   10000,
	},
	"groq/compound": {
		ContextWindow:     131072,
		MaxOutputTokens:   8192,
		RequestsPerMinute: 30,
		TokensPerMinute:   70000,
	},
	"groq/compound-mini": {
		ContextWindow:     131072,
		MaxOutputTokens:   8192,
		RequestsPerMinute: 30,
		TokensPerMinute:   70000,
	},
}

// defaultModelSpec is used for any Groq model not present in modelSpecs, so
// an unrecognized or newly released model still gets conservative limits
// instead of failing closed.
var defaultModelSpec = ModelSpec{
	ContextWindow:     131072,
	MaxOutputTokens:   8192,
	RequestsPerMinute: 30,
	TokensPerMinute:   6000,
}

// getModelSpec returns the published spec for modelID, or defaultModelSpec
// if the model isn't in the table.
func getModelSpec(modelID string) ModelSpec {
	if spec, ok := modelSpecs[modelID]; ok {
		return spec
	}
	return defaultModelSpec
}
