package pipeline

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter gives the gateway's adapter view an accurate token count
// instead of the length/4 approximation llm.MockLLMClient uses for tests.
// Candidates pooled behind a Gateway come from different providers, so
// there is no single "correct" encoding for a prompt routed through
// AsLLMClient; like the gateway's own model fallback, it normalizes to the
// o200k_base encoding (GPT-4o family) any OpenAI-compatible counter would
// use for a modern chat model, same compromise made for the OpenRouter case
// of routing across heterogeneous backing models.
type tokenCounter struct {
	mu           sync.Mutex
	encoderCache map[string]*tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{encoderCache: make(map[string]*tiktoken.Tiktoken)}
}

// modelEncodings maps a model name to its tiktoken encoding. Unknown models
// fall back to o200k_base, the encoding shared by the GPT-4o family and the
// one OpenRouter-normalized responses use regardless of backing model.
var modelEncodings = map[string]string{
	"gpt-4":       "cl100k_base",
	"gpt-4.1":     "cl100k_base",
	"gpt-4o":      "o200k_base",
	"gpt-4o-mini": "o200k_base",
	"o3":          "o200k_base",
	"o4-mini":     "o200k_base",
}

func (t *tokenCounter) count(text, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "o200k_base"
	}

	t.mu.Lock()
	enc, cached := t.encoderCache[encoding]
	t.mu.Unlock()
	if !cached {
		var err error
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			return 0, fmt.Errorf("tiktoken encoding %s: %w", encoding, err)
		}
		t.mu.Lock()
		t.encoderCache[encoding] = enc
		t.mu.Unlock()
	}

	return len(enc.Encode(text, nil, nil)), nil
}
