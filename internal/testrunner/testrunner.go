// Package testrunner invokes the generated test file against the target
// codebase, measuring coverage and optionally running mutation testing.
package testrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/loopstack/pipeline/internal/coverage"
	"github.com/loopstack/pipeline/internal/mutation"
)

// ExecutionSummary is the pass/fail tally of a test run. Invariant:
// Passed + Failed == Total.
type ExecutionSummary struct {
	Total  int
	Passed int
	Failed int
}

// Result is everything a single test run produces: the raw output, the
// pass/fail tally, and the coverage/mutation signal derived from it.
type Result struct {
	Output             string
	ExitCode           int
	Summary            ExecutionSummary
	CoveragePercent    float64
	UncoveredAreasText string
	CoverageDetails    map[string]coverage.FileReport
	MutationScore      float64
	MutationReport     *mutation.Report
	MutationFeedback   string
}

var (
	passedPattern = regexp.MustCompile(`(\d+) passed`)
	failedPattern = regexp.MustCompile(`(\d+) failed`)
	errorPattern  = regexp.MustCompile(`(\d+) error`)
)

// ParsePytestOutput extracts pass/fail/error counts from raw pytest stdout.
func ParsePytestOutput(output string) ExecutionSummary {
	var passed, failed int
	if m := passedPattern.FindStringSubmatch(output); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedPattern.FindStringSubmatch(output); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	if m := errorPattern.FindStringSubmatch(output); m != nil {
		errCount, _ := strconv.Atoi(m[1])
		failed += errCount
	}
	return ExecutionSummary{Total: passed + failed, Passed: passed, Failed: failed}
}

// coverageJSON mirrors the subset of a coverage.py-style JSON report this
// package needs: per-file executed/missing/excluded line numbers.
type coverageJSON struct {
	Files map[string]struct {
		ExecutedLines []int `json:"executed_lines"`
		MissingLines  []int `json:"missing_lines"`
		ExcludedLines []int `json:"excluded_lines"`
	} `json:"files"`
}

func toSet(nums []int) map[int]bool {
	out := make(map[int]bool, len(nums))
	for _, n := range nums {
		out[n] = true
	}
	return out
}

// ParseCoverageJSON reads a coverage.py-style JSON report and runs it
// through the file/branch/statement analyzers for each reported file,
// reading each file's source from sourceRoot.
func ParseCoverageJSON(coverageJSONPath, sourceRoot string) map[string]coverage.FileReport {
	reports := make(map[string]coverage.FileReport)

	//nolint:gosec // G304: path comes from the pipeline's own test-run working directory
	data, err := os.ReadFile(coverageJSONPath)
	if err != nil {
		return reports
	}

	var parsed coverageJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return reports
	}

	for path, f := range parsed.Files {
		fullPath := filepath.Join(sourceRoot, path)
		//nolint:gosec // G304: path originates from the pipeline's own coverage report, not user input
		src, err := os.ReadFile(fullPath)
		if err != nil {
			continue
		}
		reports[path] = coverage.AnalyzeFile(
			path, string(src),
			toSet(f.ExecutedLines), toSet(f.MissingLines), toSet(f.ExcludedLines),
		)
	}
	return reports
}

const coverageExclusionRules = `[run]
omit =
    */tests/*
    */test/*
    **/test_*.py
    **/*_test.py
    **/conftest.py

[report]
omit =
    */tests/*
    */test/*
    **/test_*.py
    **/*_test.py
    **/conftest.py
`

// writeCoverageExclusions writes the coverage tool's exclusion descriptor
// to codebasePath so test files and fixtures are never counted toward (or
// targeted by) coverage measurement.
func writeCoverageExclusions(codebasePath string) error {
	//nolint:gosec // G306: coverage config is meant to be readable by the operator and the coverage tool
	return os.WriteFile(filepath.Join(codebasePath, ".coveragerc"), []byte(coverageExclusionRules), 0644)
}

// Runner executes the generated test file via an external test framework
// (e.g. pytest) invoked by command.
type Runner struct {
	Command string // e.g. "pytest" or "python -m pytest" split into argv[0]
}

// NewRunner returns a Runner invoking command's CLI.
func NewRunner(command string) *Runner {
	return &Runner{Command: command}
}

// Run executes testFile against codebasePath, measuring coverage, and
// optionally running mutation testing afterward.
func (r *Runner) Run(ctx context.Context, testFile, codebasePath string, runMutationTests bool) Result {
	if err := writeCoverageExclusions(codebasePath); err != nil {
		// Exclusions are best-effort: a failure to write them should not
		// block the run, only widen what coverage measures.
		_ = err
	}

	runCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	//nolint:gosec // G204: command/testFile are pipeline-controlled, not external input
	cmd := exec.CommandContext(runCtx, r.Command, testFile, "-v", "--tb=short", "--timeout=30",
		"--cov="+codebasePath, "--cov-branch", "--cov-report=term-missing", "--cov-report=json")
	cmd.Dir = codebasePath

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Output: "Test execution timed out", ExitCode: 1}
	}

	exitCode := 0
	if runErr != nil {
		exitCode = 1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	summary := ParsePytestOutput(out.String())
	coverageJSONPath := filepath.Join(codebasePath, "coverage.json")
	reports := ParseCoverageJSON(coverageJSONPath, codebasePath)
	overall := coverage.OverallPercent(reports)
	uncovered := coverage.FormatUncoveredAreas(reports)

	result := Result{
		Output:             out.String(),
		ExitCode:           exitCode,
		Summary:            summary,
		CoveragePercent:    overall,
		UncoveredAreasText: uncovered,
		CoverageDetails:    reports,
	}

	if runMutationTests {
		var toMutate []string
		for path, rep := range reports {
			if mutation.ShouldMutateFile(rep) {
				toMutate = append(toMutate, filepath.Join(codebasePath, path))
			}
		}
		if len(toMutate) > 0 {
			runner := mutation.NewRunner("mutmut", codebasePath)
			mutationReport := runner.Run(ctx, toMutate, filepath.Dir(testFile), 600*time.Second)
			result.MutationScore = mutationReport.Score
			result.MutationReport = &mutationReport
			result.MutationFeedback = mutation.FormatFeedback(mutationReport)
		} else {
			result.MutationFeedback = "No files with >=95% coverage - skipping mutation testing"
		}
	}

	return result
}
