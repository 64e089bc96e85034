package groq

import (
	"context"

	"github.com/loopstack/pipeline/internal/apikey"
	"github.com/loopstack/pipeline/internal/llm"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/providers"
)

// GroqProvider implements the Provider interface for Groq-hosted models.
type GroqProvider struct {
	logger  logutil.LoggerInterface
	limiter *Limiter
}

// NewProvider creates a new instance of GroqProvider. A single Limiter is
// shared across every client the provider creates, since Groq's RPM/TPM
// limits are per-model account-wide, not per-client.
func NewProvider(logger logutil.LoggerInterface) providers.Provider {
	if logger == nil {
		logger = logutil.NewLogger(logutil.InfoLevel, nil, "[groq-provider] ")
	}

	return &GroqProvider{
		logger:  logger,
		limiter: NewLimiter(),
	}
}

// CreateClient implements the Provider interface.
func (p *GroqProvider) CreateClient(ctx context.Context, apiKeyParam string, modelID string, apiEndpoint string) (llm.LLMClient, error) {
	p.logger.Debug("Creating Groq client for model: %s", modelID)

	keyResolver := apikey.NewAPIKeyResolver(p.logger)
	keyResult, err := keyResolver.ResolveAPIKey(ctx, "groq", apiKeyParam)
	if err != nil {
		// Multi-key rotation falls back to scanning GROQ_API_KEY* directly,
		// so only surface the resolver's error if no key rotation is possible either.
		if NewKeyRotator("").Empty() {
			return nil, err
		}
	}

	effectiveKey := ""
	if keyResult != nil {
		effectiveKey = keyResult.Key
	}

	return NewClient(effectiveKey, modelID, apiEndpoint, p.logger, p.limiter)
}
