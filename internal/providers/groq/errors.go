package groq

import (
	"errors"

	"github.com/loopstack/pipeline/internal/llm"
)

// IsGroqError checks if an error is an llm.LLMError originating from Groq.
func IsGroqError(err error) (*llm.LLMError, bool) {
	var llmErr *llm.LLMError
	if errors.As(err, &llmErr) && llmErr.Provider == "groq" {
		return llmErr, true
	}
	return nil, false
}

// FormatAPIError creates a standardized LLMError from a Groq API error.
func FormatAPIError(err error, statusCode int) *llm.LLMError {
	if err == nil {
		return nil
	}

	var llmErr *llm.LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	category := llm.DetectErrorCategory(err, statusCode)
	llmError := llm.CreateStandardErrorWithMessage("groq", category, err, "")

	switch category {
	case llm.CategoryAuth:
		llmError.Suggestion = "Check that your GROQ_API_KEY is valid and has not expired."
	case llm.CategoryInsufficientCredits:
		llmError.Suggestion = "Check your Groq account balance and billing status."
	case llm.CategoryRateLimit:
		llmError.Suggestion = "Wait for the rate limit window to reset, or configure additional GROQ_API_KEY2/GROQ_API_KEY3 keys to spread load."
	case llm.CategoryInvalidRequest:
		llmError.Suggestion = "Check the prompt format and parameters against the Groq API requirements."
	case llm.CategoryNotFound:
		llmError.Suggestion = "Verify the model ID is a currently supported Groq model."
	case llm.CategoryServer:
		llmError.Suggestion = "This is typically a temporary issue. Wait a few moments and try again."
	case llm.CategoryNetwork:
		llmError.Suggestion = "Check your internet connection and try again."
	case llm.CategoryCancelled:
		llmError.Suggestion = "The operation was interrupted. Try again with a longer timeout if needed."
	case llm.CategoryInputLimit:
		llmError.Suggestion = "Reduce the input size; it exceeds this model's context window."
	case llm.CategoryContentFiltered:
		llmError.Suggestion = "The prompt was flagged by Groq's Llama Guard safety check."
	}

	return llmError
}

// CreateAPIError creates a new LLMError with Groq-specific settings.
func CreateAPIError(category llm.ErrorCategory, errMsg string, originalErr error, details string) *llm.LLMError {
	llmError := llm.New("groq", "", 0, errMsg, "", originalErr, category)

	if details != "" {
		llmError.Details = details
	}

	switch category {
	case llm.CategoryAuth:
		llmError.Suggestion = "Check that your GROQ_API_KEY is valid and has not expired."
	case llm.CategoryInsufficientCredits:
		llmError.Suggestion = "Check your Groq account balance and billing status."
	case llm.CategoryRateLimit:
		llmError.Suggestion = "Wait for the rate limit window to reset, or configure additional GROQ_API_KEY2/GROQ_API_KEY3 keys to spread load."
	case llm.CategoryInvalidRequest:
		llmError.Suggestion = "Check the prompt format and parameters against the Groq API requirements."
	case llm.CategoryNotFound:
		llmError.Suggestion = "Verify the model ID is a currently supported Groq model."
	default:
		llmError.Suggestion = "Check the logs for more details or try again."
	}

	return llmError
}
