// Package mutation drives an external mutation-testing tool over
// well-covered source files and reports how many injected mutants the
// generated test suite actually caught.
package mutation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/loopstack/pipeline/internal/coverage"
)

// Mutant describes one surviving mutant: a change to the source the test
// suite failed to detect.
type Mutant struct {
	ID           string
	Status       string
	FilePath     string
	LineNumber   int
	OriginalCode string
	MutatedCode  string
}

// Report is the outcome of a mutation testing run.
type Report struct {
	Score           float64
	TotalMutants    int
	Killed          int
	Survived        int
	Timeout         int
	Suspicious      int
	SurvivedMutants []Mutant
}

// ShouldEnable decides whether mutation testing is worth running this
// iteration. It is expensive, so it only runs once coverage improvement
// has plateaued or coverage is already high — running it from iteration 1
// would waste time mutating code the suite is still being built out for.
func ShouldEnable(currentCoverage, previousCoverage float64, iteration int) bool {
	if iteration < 3 {
		return false
	}
	delta := currentCoverage - previousCoverage
	if delta < 3.0 {
		return true
	}
	return currentCoverage >= 92.0
}

// ShouldMutateFile reports whether a file's coverage is high enough that
// mutating it will produce a meaningful signal: mutants planted on
// uncovered lines can never be killed, so they would only add noise.
func ShouldMutateFile(report coverage.FileReport) bool {
	return report.Percent >= 95.0
}

var (
	killedPattern     = regexp.MustCompile(`(?i)Dead:\s*(\d+)`)
	survivedPattern   = regexp.MustCompile(`(?i)Survived:\s*(\d+)`)
	timeoutPattern    = regexp.MustCompile(`(?i)Timeout:\s*(\d+)`)
	suspiciousPattern = regexp.MustCompile(`(?i)Suspicious:\s*(\d+)`)
	totalPattern      = regexp.MustCompile(`(?i)(\d+)\s*mutants?\s*tested`)
)

func parseToolOutput(output string) (killed, survived, timeoutCount, suspicious, total int) {
	if m := killedPattern.FindStringSubmatch(output); m != nil {
		killed, _ = strconv.Atoi(m[1])
	}
	if m := survivedPattern.FindStringSubmatch(output); m != nil {
		survived, _ = strconv.Atoi(m[1])
	}
	if m := timeoutPattern.FindStringSubmatch(output); m != nil {
		timeoutCount, _ = strconv.Atoi(m[1])
	}
	if m := suspiciousPattern.FindStringSubmatch(output); m != nil {
		suspicious, _ = strconv.Atoi(m[1])
	}
	if m := totalPattern.FindStringSubmatch(output); m != nil {
		total, _ = strconv.Atoi(m[1])
	} else {
		total = killed + survived + timeoutCount + suspicious
	}
	return
}

// Runner drives the external mutation tool, invoked by name (e.g. "mutmut")
// so tests can substitute a fake binary on PATH.
type Runner struct {
	ToolName string
	WorkDir  string
}

// NewRunner returns a Runner invoking toolName's CLI from workDir.
func NewRunner(toolName, workDir string) *Runner {
	return &Runner{ToolName: toolName, WorkDir: workDir}
}

// Run executes the mutation tool against pathsToMutate (files already
// filtered by ShouldMutateFile) and returns the parsed report. An empty
// pathsToMutate list or a timed-out/failed subprocess yields a zero-value
// report rather than an error — mutation testing is a best-effort signal,
// not a pipeline-blocking step.
func (r *Runner) Run(ctx context.Context, pathsToMutate []string, testDir string, timeout time.Duration) Report {
	if len(pathsToMutate) == 0 {
		return Report{}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // G204: toolName/paths are controlled by the pipeline's own config, not external input
	cmd := exec.CommandContext(runCtx, r.ToolName, "run",
		"--paths-to-mutate="+strings.Join(pathsToMutate, ","),
		"--tests-dir="+testDir,
	)
	cmd.Dir = r.WorkDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run() // non-zero exit / timeout is expected when mutants survive

	killed, survived, timeoutCount, suspicious, total := parseToolOutput(out.String())

	denom := killed + survived
	score := 0.0
	if denom > 0 {
		score = round1(float64(killed) / float64(denom) * 100)
	}

	report := Report{
		Score:        score,
		TotalMutants: total,
		Killed:       killed,
		Survived:     survived,
		Timeout:      timeoutCount,
		Suspicious:   suspicious,
	}

	if survived > 0 {
		report.SurvivedMutants = r.collectSurvivors(ctx, 20)
	}
	return report
}

var idLinePattern = regexp.MustCompile(`(\d+)`)

// collectSurvivors retrieves up to limit survived mutants' details via the
// tool's "results"/"show" subcommands, parsing its diff-like output.
func (r *Runner) collectSurvivors(ctx context.Context, limit int) []Mutant {
	resultsCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	//nolint:gosec // G204: toolName is pipeline configuration, not external input
	resultsCmd := exec.CommandContext(resultsCtx, r.ToolName, "results")
	resultsCmd.Dir = r.WorkDir
	var resultsOut bytes.Buffer
	resultsCmd.Stdout = &resultsOut
	if err := resultsCmd.Run(); err != nil {
		return nil
	}

	var ids []string
	inSurvivedSection := false
	for _, line := range strings.Split(resultsOut.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "survived") && strings.Contains(trimmed, ":") {
			inSurvivedSection = true
			continue
		}
		if !inSurvivedSection {
			continue
		}
		if m := idLinePattern.FindString(trimmed); m != "" {
			ids = append(ids, m)
		} else if trimmed == "" || strings.Contains(trimmed, ":") {
			inSurvivedSection = false
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}

	var mutants []Mutant
	for _, id := range ids {
		showCtx, showCancel := context.WithTimeout(ctx, 10*time.Second)
		//nolint:gosec // G204: toolName/id are pipeline-controlled, not external input
		showCmd := exec.CommandContext(showCtx, r.ToolName, "show", id)
		showCmd.Dir = r.WorkDir
		var showOut bytes.Buffer
		showCmd.Stdout = &showOut
		err := showCmd.Run()
		showCancel()
		if err != nil {
			continue
		}
		mutants = append(mutants, parseShowOutput(id, showOut.String()))
	}
	return mutants
}

var showLineNumberPattern = regexp.MustCompile(`\+(\d+)`)

func parseShowOutput(id, output string) Mutant {
	m := Mutant{ID: id, Status: "survived"}
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			m.FilePath = strings.TrimSpace(line[4:])
		case strings.HasPrefix(line, "@@"):
			if mm := showLineNumberPattern.FindStringSubmatch(line); mm != nil {
				m.LineNumber, _ = strconv.Atoi(mm[1])
			}
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			m.OriginalCode = strings.TrimSpace(line[1:])
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			m.MutatedCode = strings.TrimSpace(line[1:])
		}
	}
	return m
}

// FormatFeedback renders report as a human-readable summary suitable for
// embedding directly in an LLM prompt, so the implementation/evaluation
// agents can target the specific assertions tests are missing.
func FormatFeedback(report Report) string {
	if report.TotalMutants == 0 {
		return "Mutation testing was not run or produced no mutants."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mutation Coverage: %.1f%%\n", report.Score)
	fmt.Fprintf(&b, "Total Mutants: %d | Killed: %d | Survived: %d | Timeout: %d\n",
		report.TotalMutants, report.Killed, report.Survived, report.Timeout)

	if len(report.SurvivedMutants) > 0 {
		b.WriteString("\nSurvived Mutants (weaknesses in tests):\n")
		for i, mut := range report.SurvivedMutants {
			location := mut.FilePath
			if location == "" {
				location = "unknown"
			}
			if mut.LineNumber != 0 {
				location += fmt.Sprintf(":%d", mut.LineNumber)
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, location)
			if mut.OriginalCode != "" {
				fmt.Fprintf(&b, "     Original: %s\n", mut.OriginalCode)
			}
			if mut.MutatedCode != "" {
				fmt.Fprintf(&b, "     Mutant:   %s\n", mut.MutatedCode)
			}
			b.WriteString("     -> Tests did not detect this change. Add an assertion that covers this behavior.\n")
		}
	}

	return b.String()
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
