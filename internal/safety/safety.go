// Package safety implements the pipeline's prompt-safety classifier: a
// best-effort check that a prompt headed for an LLM call doesn't itself
// carry unsafe content, using a dedicated moderation model rather than the
// model generating the response.
package safety

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/providers/groq"
)

// DefaultModel is the moderation model used when none is configured.
const DefaultModel = "meta-llama/llama-guard-4-12b"

// modelContextWindows gives the token budget for each supported
// moderation model, used to bound how much of a prompt is sent for
// classification.
var modelContextWindows = map[string]int32{
	"meta-llama/llama-guard-4-12b":        163840,
	"meta-llama/llama-prompt-guard-2-22m": 512,
	"meta-llama/llama-prompt-guard-2-86m": 512,
	"openai/gpt-oss-safeguard-20b":        128000,
}

// hazards maps Llama Guard hazard codes to human-readable labels.
var hazards = map[string]string{
	"S1":  "Violent Crimes",
	"S2":  "Non-Violent Crimes",
	"S3":  "Sex Crimes",
	"S4":  "Child Exploitation",
	"S5":  "Defamation",
	"S6":  "Specialized Advice",
	"S7":  "Privacy",
	"S8":  "IP Violation",
	"S9":  "Weapons",
	"S10": "Hate",
	"S11": "Self-Harm",
	"S12": "Sexual Content",
	"S13": "Elections",
	"S14": "Code Abuse",
}

const groqBaseURL = "https://api.groq.com/openai/v1"

// PromptSafetyChecker classifies a prompt as safe or unsafe before it is
// sent on to a generation call. It is deliberately non-blocking: when no
// credentials are configured, or the classifier call itself fails, it
// defaults to allowing the prompt through rather than stalling the
// pipeline on a moderation outage.
type PromptSafetyChecker struct {
	model      string
	ctxBudget  int32
	apiKey     string
	configured bool
	logger     logutil.LoggerInterface
}

// NewPromptSafetyChecker builds a checker for model, discovering a Groq
// API key from the environment the same way internal/providers/groq does.
// If no key is found, the checker is still usable: Check will always
// report "skipped" rather than erroring.
func NewPromptSafetyChecker(model string, logger logutil.LoggerInterface) *PromptSafetyChecker {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = logutil.NewLogger(logutil.InfoLevel, nil, "[safety] ")
	}

	ctxBudget, ok := modelContextWindows[model]
	if !ok {
		ctxBudget = modelContextWindows[DefaultModel]
	}

	rotator := groq.NewKeyRotator("")
	apiKey := ""
	if !rotator.Empty() {
		if key, err := rotator.Next(); err == nil {
			apiKey = key
		}
	}

	return &PromptSafetyChecker{
		model:      model,
		ctxBudget:  ctxBudget,
		apiKey:     apiKey,
		configured: apiKey != "",
		logger:     logger,
	}
}

// Check classifies prompt, returning whether it is safe to proceed and a
// short human-readable reason. It never returns an error: a classifier
// failure is treated as "allow, but say why" so a moderation outage never
// blocks the pipeline by itself.
func (c *PromptSafetyChecker) Check(ctx context.Context, prompt string) (bool, string) {
	if !c.configured {
		return true, "skipped"
	}

	truncated := prompt
	if maxChars := int(c.ctxBudget) * 4; len(truncated) > maxChars {
		truncated = truncated[:maxChars]
	}

	client := openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(groqBaseURL),
	)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(truncated),
		},
		Model:     c.model,
		MaxTokens: openai.Int(100),
	})
	if err != nil {
		c.logger.Warn("prompt safety check failed: %v", err)
		return true, "error: " + err.Error()
	}
	if len(completion.Choices) == 0 {
		return true, "error: empty classifier response"
	}

	result := strings.ToLower(strings.TrimSpace(completion.Choices[0].Message.Content))
	if strings.HasPrefix(result, "safe") {
		return true, "safe"
	}

	code := ""
	if lines := strings.SplitN(result, "\n", 2); len(lines) > 1 {
		code = strings.ToUpper(strings.TrimSpace(lines[1]))
	}

	label, ok := hazards[code]
	if !ok {
		if code == "" {
			label = "unknown"
		} else {
			label = code
		}
	}
	return false, "Unsafe: " + label
}

// HazardLabel returns the human-readable label for a hazard code, or the
// code itself if unrecognized.
func HazardLabel(code string) string {
	if label, ok := hazards[code]; ok {
		return label
	}
	return code
}
