package dependency

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loopstack/pipeline/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_UsesLLMWhenParseable(t *testing.T) {
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			return &llm.ProviderResult{Content: "```json\n{\"packages\": [\"requests\", \"pytest\"]}\n```"}, nil
		},
	}
	packages := Extract(context.Background(), client, "import requests\n")
	assert.Equal(t, []string{"requests", "pytest"}, packages)
}

func TestExtract_FallsBackToRegexOnUnparseableResponse(t *testing.T) {
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			return &llm.ProviderResult{Content: "I cannot help with that."}, nil
		},
	}
	packages := Extract(context.Background(), client, "import requests\nimport yaml\n")
	assert.Contains(t, packages, "requests")
	assert.Contains(t, packages, "PyYAML")
	assert.Contains(t, packages, "pytest")
	assert.Contains(t, packages, "pytest-cov")
	assert.Contains(t, packages, "pytest-timeout")
}

func TestExtract_NilClientUsesRegex(t *testing.T) {
	packages := Extract(context.Background(), nil, "import numpy\n")
	assert.Contains(t, packages, "numpy")
}

func TestInstallWithRetry_SucceedsImmediately(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake shell script tool not supported on windows")
	}
	dir := t.TempDir()
	fakePip := filepath.Join(dir, "pip")
	require.NoError(t, os.WriteFile(fakePip, []byte("#!/bin/sh\necho installed\nexit 0\n"), 0755))

	in := NewInstaller(fakePip, dir)
	result := in.InstallWithRetry(context.Background(), nil, []string{"requests"})
	assert.Equal(t, 0, result.ExitCode)
}

func TestInstallWithRetry_NoPackagesNoOp(t *testing.T) {
	in := NewInstaller("pip", t.TempDir())
	result := in.InstallWithRetry(context.Background(), nil, nil)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "No packages to install", result.Output)
}

func TestInstallWithRetry_RetriesWithLLMSuggestion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake shell script tool not supported on windows")
	}
	dir := t.TempDir()
	fakePip := filepath.Join(dir, "pip")
	// Always fails, to exercise the retry loop without actually succeeding.
	require.NoError(t, os.WriteFile(fakePip, []byte("#!/bin/sh\necho 'no matching distribution' 1>&2\nexit 1\n"), 0755))

	calls := 0
	client := &llm.MockLLMClient{
		GenerateContentFunc: func(ctx context.Context, prompt string, params map[string]interface{}) (*llm.ProviderResult, error) {
			calls++
			return &llm.ProviderResult{Content: `{"packages": ["requests"], "reason": "typo fix"}`}, nil
		},
	}

	in := NewInstaller(fakePip, dir)
	in.backoff = func(int) time.Duration { return 0 }
	result := in.InstallWithRetry(context.Background(), client, []string{"reqeusts"})
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, maxInstallRetries, calls)
}
