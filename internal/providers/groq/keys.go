package groq

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// KeyRotator cycles through multiple Groq API keys, so a pipeline run can
// spread requests across several keys instead of exhausting one account's
// rate limit. Keys are discovered from GROQ_API_KEY, GROQ_API_KEY2,
// GROQ_API_KEY3, ... in the environment.
type KeyRotator struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRotator discovers GROQ_API_KEY-prefixed environment variables and
// returns a rotator over them. If explicitKey is non-empty it is used as the
// sole key, taking precedence over the environment.
func NewKeyRotator(explicitKey string) *KeyRotator {
	if explicitKey != "" {
		return &KeyRotator{keys: []string{explicitKey}}
	}
	return &KeyRotator{keys: discoverGroqKeys()}
}

// discoverGroqKeys scans the environment for GROQ_API_KEY and
// GROQ_API_KEY2, GROQ_API_KEY3, ... in ascending numeric order.
func discoverGroqKeys() []string {
	type indexedKey struct {
		index int
		value string
	}
	var found []indexedKey

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if name == "GROQ_API_KEY" {
			found = append(found, indexedKey{index: 0, value: value})
			continue
		}
		if suffix, ok := strings.CutPrefix(name, "GROQ_API_KEY"); ok && suffix != "" {
			if n, err := strconv.Atoi(suffix); err == nil {
				found = append(found, indexedKey{index: n, value: value})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	keys := make([]string, 0, len(found))
	for _, k := range found {
		keys = append(keys, k.value)
	}
	return keys
}

// Empty reports whether no keys were discovered.
func (r *KeyRotator) Empty() bool {
	return len(r.keys) == 0
}

// Next returns the next key in rotation order.
func (r *KeyRotator) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", fmt.Errorf("no Groq API keys configured: set GROQ_API_KEY (optionally GROQ_API_KEY2, GROQ_API_KEY3, ...)")
	}

	key := r.keys[r.idx]
	r.idx = (r.idx + 1) % len(r.keys)
	return key, nil
}

// Count returns the number of keys available for rotation.
func (r *KeyRotator) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
