// Package dependency resolves the third-party packages a generated test
// file needs and installs them, retrying with LLM-guided corrections when
// an install attempt fails.
package dependency

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/loopstack/pipeline/internal/cli"
	"github.com/loopstack/pipeline/internal/codeutil"
	"github.com/loopstack/pipeline/internal/llm"
)

const (
	dependencyAnalysisSystemPrompt = "You identify the exact third-party packages a test file imports. " +
		"Respond with JSON of the form {\"packages\": [\"name\", ...]}. Only list packages that must be " +
		"installed from a package index; never list standard-library modules."

	dependencyFixSystemPrompt = "A dependency installation failed. Given the attempted packages and the " +
		"installer's error output, suggest a corrected package list. Respond with JSON of the form " +
		"{\"packages\": [...], \"reason\": \"...\"}."
)

// importToPackage maps a handful of common module names to the package
// name an installer needs, for the regex-fallback path.
var importToPackage = map[string]string{
	"fastapi":        "fastapi",
	"starlette":      "starlette",
	"httpx":          "httpx",
	"pytest":         "pytest",
	"pytest_asyncio": "pytest-asyncio",
	"jinja2":         "jinja2",
	"pydantic":       "pydantic",
	"sqlalchemy":     "sqlalchemy",
	"flask":          "flask",
	"django":         "django",
	"requests":       "requests",
	"aiohttp":        "aiohttp",
	"numpy":          "numpy",
	"pandas":         "pandas",
	"cv2":            "opencv-python",
	"bs4":            "beautifulsoup4",
	"yaml":           "PyYAML",
	"PIL":            "Pillow",
	"sklearn":        "scikit-learn",
}

var importLine = regexp.MustCompile(`^(?:from|import)\s+([A-Za-z_][A-Za-z0-9_]*)`)

type packagesResponse struct {
	Packages []string `json:"packages"`
	Reason   string   `json:"reason"`
}

func parsePackagesResponse(raw string) (packagesResponse, bool) {
	var resp packagesResponse
	if err := json.Unmarshal([]byte(codeutil.Sanitize(raw)), &resp); err != nil {
		return packagesResponse{}, false
	}
	return resp, true
}

// extractByRegex scans testCode's import lines and maps known modules to
// package names, always including the pytest essentials the test runner
// itself needs.
func extractByRegex(testCode string) []string {
	found := make(map[string]struct{})
	for _, line := range strings.Split(testCode, "\n") {
		m := importLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if pkg, ok := importToPackage[m[1]]; ok {
			found[pkg] = struct{}{}
		}
	}
	found["pytest"] = struct{}{}
	found["pytest-cov"] = struct{}{}
	found["pytest-timeout"] = struct{}{}

	packages := make([]string, 0, len(found))
	for p := range found {
		packages = append(packages, p)
	}
	sort.Strings(packages)
	return packages
}

const maxDependencyAnalysisChars = 10000

// Extract determines the packages testCode needs to run, asking client
// first and falling back to a regex/import-table scan when the LLM
// response can't be parsed as the expected JSON shape.
func Extract(ctx context.Context, client llm.LLMClient, testCode string) []string {
	if client != nil {
		sample := testCode
		if len(sample) > maxDependencyAnalysisChars {
			sample = sample[:maxDependencyAnalysisChars] + "\n... (truncated)"
		}
		prompt := dependencyAnalysisSystemPrompt + "\n\nIdentify PyPI packages for this code:\n\n" + sample
		if result, err := client.GenerateContent(ctx, prompt, nil); err == nil {
			if resp, ok := parsePackagesResponse(result.Content); ok {
				return resp.Packages
			}
		}
	}
	return extractByRegex(testCode)
}

// InstallResult is the outcome of an install attempt.
type InstallResult struct {
	Output   string
	ExitCode int
}

// Installer runs a package installer (e.g. pip) and, on failure, asks an
// LLMClient for a corrected package list before retrying.
type Installer struct {
	Command string // e.g. "pip"
	WorkDir string

	// backoff is overridable in tests to avoid real sleeps; defaults to
	// cli.BackoffDelay.
	backoff func(attempt int) time.Duration
}

// NewInstaller returns an Installer invoking command's CLI from workDir.
func NewInstaller(command, workDir string) *Installer {
	return &Installer{Command: command, WorkDir: workDir, backoff: cli.BackoffDelay}
}

const maxInstallRetries = 3

// InstallWithRetry installs packages, retrying up to maxInstallRetries
// times with an LLM-suggested correction whenever an attempt fails.
func (in *Installer) InstallWithRetry(ctx context.Context, client llm.LLMClient, packages []string) InstallResult {
	current := append([]string(nil), packages...)
	var lastOutput string
	var lastExitCode int

	for attempt := 0; attempt <= maxInstallRetries; attempt++ {
		if len(current) == 0 {
			return InstallResult{Output: "No packages to install", ExitCode: 0}
		}

		result := in.runInstall(ctx, current)
		lastOutput, lastExitCode = result.Output, result.ExitCode
		if result.ExitCode == 0 {
			return result
		}

		if attempt >= maxInstallRetries || client == nil {
			break
		}

		select {
		case <-time.After(in.backoff(attempt)):
		case <-ctx.Done():
			return InstallResult{Output: lastOutput, ExitCode: lastExitCode}
		}

		prompt := fmt.Sprintf(
			"%s\n\nPackages attempted: %v\n\nError message:\n%s\n\nSuggest a fix.",
			dependencyFixSystemPrompt, current, result.Output,
		)
		genResult, err := client.GenerateContent(ctx, prompt, nil)
		if err != nil {
			break
		}
		resp, ok := parsePackagesResponse(genResult.Content)
		if !ok || len(resp.Packages) == 0 {
			break
		}
		current = resp.Packages
	}

	return InstallResult{Output: lastOutput, ExitCode: lastExitCode}
}

func (in *Installer) runInstall(ctx context.Context, packages []string) InstallResult {
	runCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	args := append([]string{"install", "--quiet"}, packages...)
	//nolint:gosec // G204: command/packages are pipeline-controlled configuration, not external input
	cmd := exec.CommandContext(runCtx, in.Command, args...)
	cmd.Dir = in.WorkDir

	out, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		exitCode = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	return InstallResult{Output: string(out), ExitCode: exitCode}
}
