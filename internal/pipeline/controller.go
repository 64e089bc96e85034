package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loopstack/pipeline/internal/codeutil"
	"github.com/loopstack/pipeline/internal/dependency"
	"github.com/loopstack/pipeline/internal/fileutil"
	"github.com/loopstack/pipeline/internal/governance"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/mutation"
	"github.com/loopstack/pipeline/internal/pathutil"
	"github.com/loopstack/pipeline/internal/runutil"
	"github.com/loopstack/pipeline/internal/safety"
	"github.com/loopstack/pipeline/internal/scenario"
	"github.com/loopstack/pipeline/internal/testrunner"
)

// defaultMaxIterations bounds the improve loop regardless of progress,
// unless overridden by Controller.MaxIterations.
const defaultMaxIterations = 15

// defaultMaxStagnantIterations is how many consecutive non-progress
// iterations are tolerated before the controller gives up on the current
// run, unless overridden by Controller.MaxStagnantIterations.
const defaultMaxStagnantIterations = 5

const (
	defaultTargetCoverage = 90.0
	defaultTargetMutation = 80.0
)

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Status is the controller's terminal or in-progress run state.
type Status string

const (
	StatusIdentify  Status = "identify"
	StatusApprove   Status = "approve"
	StatusImplement Status = "implement"
	StatusRunTests  Status = "run_tests"
	StatusEvaluate  Status = "evaluate"
	StatusDone      Status = "completed"
	StatusAborted   Status = "aborted"
)

// RunResult summarizes a completed or aborted pipeline run.
type RunResult struct {
	Status        Status
	Iterations    int
	FinalCoverage float64
	TestFilePath  string
	Elapsed       time.Duration
}

// Controller drives the identify/approve/implement/run/evaluate/improve
// loop described for a single codebase run.
type Controller struct {
	CodebasePath string
	OutputDir    string
	Ext          string
	AutoApprove  bool
	SkipRunTests bool

	// TargetCoverage and TargetMutation are the percentage thresholds a run
	// must clear before the improve loop stops early; MaxIterations and
	// MaxStagnantIterations bound it regardless of progress. Zero means use
	// the package defaults.
	TargetCoverage        float64
	TargetMutation        float64
	MaxIterations         int
	MaxStagnantIterations int

	Gateway    *Gateway
	Safety     *safety.PromptSafetyChecker
	Gov        *governance.Log
	Logger     logutil.LoggerInterface
	TestRunner *testrunner.Runner
	Installer  *dependency.Installer

	runID   string
	runName string
}

// Run executes the full pipeline against CodebasePath and returns once the
// run finishes, is aborted, or exhausts its iteration budget.
func (c *Controller) Run(ctx context.Context) RunResult {
	start := time.Now()
	c.runID = uuid.NewString()
	c.runName = runutil.GenerateRunName()
	ctx = logutil.WithCorrelationID(ctx, c.runID)
	if c.Logger != nil {
		c.Logger.InfoContext(ctx, "starting pipeline run %s (%s) for %s", c.runName, c.runID, c.CodebasePath)
	}
	fmt.Printf("Run: %s\n", c.runName)

	targetCoverage := orDefault(c.TargetCoverage, defaultTargetCoverage)
	targetMutation := orDefault(c.TargetMutation, defaultTargetMutation)
	maxIterations := orDefaultInt(c.MaxIterations, defaultMaxIterations)
	maxStagnantIterations := orDefaultInt(c.MaxStagnantIterations, defaultMaxStagnantIterations)

	files, err := fileutil.ScanSourceFiles(c.CodebasePath, c.Ext)
	if err != nil || len(files) == 0 {
		c.Gov.LogFailure(ErrorKindConfigMissing.String(), "no source files found", 0)
		return c.finish(ctx, StatusAborted, 0, 0, "", start, EvaluationOutput{})
	}

	moduleNames := make([]string, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		moduleNames = append(moduleNames, strings.TrimSuffix(name, filepath.Ext(name)))
	}

	fmt.Println("Identifying test scenarios...")
	chunks, err := fileutil.Chunk(files, 0)
	if err != nil {
		c.Gov.LogFailure(ErrorKindConfigMissing.String(), err.Error(), 0)
		return c.finish(ctx, StatusAborted, 0, 0, "", start, EvaluationOutput{})
	}

	if c.Safety != nil {
		for _, chunk := range chunks {
			if safe, reason := c.Safety.Check(ctx, chunk); !safe {
				c.Gov.LogFailure(ErrorKindSafetyBlocked.String(), reason, 0)
			}
		}
	}

	identAgent := &IdentificationAgent{Gateway: c.Gateway, Gov: c.Gov, Logger: c.Logger}
	scenarios := identAgent.Run(ctx, files, chunks)
	fmt.Printf("Identified %d scenarios\n", len(scenarios))

	scenarios = c.approve(ctx, scenarios)
	if len(scenarios) == 0 {
		c.Gov.LogFailure(ErrorKindConfigMissing.String(), "no scenarios survived approval", 0)
		return c.finish(ctx, StatusAborted, 0, 0, "", start, EvaluationOutput{})
	}

	implAgent := &ImplementationAgent{Gateway: c.Gateway, Gov: c.Gov, Logger: c.Logger, OutputDir: c.OutputDir}
	evalAgent := &EvaluationAgent{Gateway: c.Gateway, Gov: c.Gov, Logger: c.Logger}

	fmt.Println("Generating PyTest code...")
	declaredPackages := dependency.Extract(ctx, c.Gateway.AsLLMClient(), strings.Join(chunks, "\n"))
	if c.Installer != nil {
		c.Installer.InstallWithRetry(ctx, c.Gateway.AsLLMClient(), declaredPackages)
	}

	gen, err := implAgent.Run(ctx, scenarios, chunks, moduleNames, declaredPackages)
	if err != nil {
		c.Gov.LogFailure(ErrorKindLLMExhausted.String(), err.Error(), 0)
		return c.finish(ctx, StatusAborted, 0, 0, "", start, EvaluationOutput{})
	}

	bestCoverage := -1.0
	bestTestCode := gen.Code
	bestSeverity := -1
	stagnant := 0
	lastCoverage, prevCoverage := -1.0, -1.0

	var lastEval EvaluationOutput
	iteration := 0

	for iteration = 1; iteration <= maxIterations; iteration++ {
		fmt.Printf("Iteration %d\n", iteration)

		var result testrunner.Result
		if !c.SkipRunTests && c.TestRunner != nil {
			fmt.Println("Running tests")
			runMutation := mutation.ShouldEnable(lastCoverage, prevCoverage, iteration)
			result = c.TestRunner.Run(ctx, gen.FilePath, c.CodebasePath, runMutation)
		}
		fmt.Printf("Coverage: %.1f%%\n", result.CoveragePercent)
		fmt.Printf("Tests: %d/%d passed\n", result.Summary.Passed, result.Summary.Total)

		lastEval = evalAgent.Run(ctx, result, summarizeScenarios(scenarios))
		fmt.Printf("Security issues found: %d\n", len(lastEval.SecurityIssues))
		severeCount := severeSecurityCount(lastEval.SecurityIssues)
		if severeCount > 0 {
			fmt.Printf("Severe security issues: %d\n", severeCount)
		} else {
			fmt.Println("Severe security issues: None")
		}

		progressed := lastEval.CodeCoveragePercentage > bestCoverage || severeCount < bestSeverity || bestSeverity < 0
		if progressed {
			stagnant = 0
			if lastEval.CodeCoveragePercentage > bestCoverage {
				bestCoverage = lastEval.CodeCoveragePercentage
				bestTestCode = gen.Code
			}
			if bestSeverity < 0 || severeCount < bestSeverity {
				bestSeverity = severeCount
			}
		} else {
			stagnant++
		}
		prevCoverage = lastCoverage
		lastCoverage = lastEval.CodeCoveragePercentage

		mutationRanThisIteration := result.MutationReport.TotalMutants > 0
		targetsMet := lastEval.CodeCoveragePercentage >= targetCoverage &&
			!lastEval.HasSevereSecurityIssues &&
			(!mutationRanThisIteration || lastEval.MutationScore >= targetMutation)

		if targetsMet {
			fmt.Println("All targets met")
			break
		}
		if stagnant >= maxStagnantIterations {
			break
		}
		if iteration == maxIterations {
			break
		}

		gen, err = implAgent.Improve(ctx, scenarios, chunks, moduleNames, declaredPackages,
			gen.FilePath, gen.Code, result.UncoveredAreasText, firstSyntaxIssue(gen.Code), securityFeedback(lastEval.SecurityIssues))
		if err != nil {
			c.Gov.LogFailure(ErrorKindLLMExhausted.String(), err.Error(), iteration)
			break
		}

		declaredPackages = dependency.Extract(ctx, c.Gateway.AsLLMClient(), gen.Code)
		if c.Installer != nil {
			c.Installer.InstallWithRetry(ctx, c.Gateway.AsLLMClient(), declaredPackages)
		}
	}

	if lastEval.CodeCoveragePercentage < bestCoverage {
		_ = os.WriteFile(gen.FilePath, []byte(bestTestCode), 0o644)
	}

	status := StatusDone
	if lastEval.CodeCoveragePercentage < targetCoverage || lastEval.HasSevereSecurityIssues {
		status = StatusAborted
	}

	fmt.Printf("Pipeline Complete\n")
	result := c.finish(ctx, status, iteration, bestCoverage, gen.FilePath, start, lastEval)
	fmt.Printf("Total time: %.0fs (%d iterations)\n", result.Elapsed.Seconds(), result.Iterations)
	if c.Logger != nil {
		c.Logger.InfoContext(ctx, "pipeline run %s finished with status %s after %d iterations", c.runID, status, result.Iterations)
	}
	return result
}

// approve runs the interactive or auto approval policy, returning the
// scenarios that survive.
func (c *Controller) approve(ctx context.Context, scenarios []scenario.Scenario) []scenario.Scenario {
	set := scenario.NewSet(scenarios...)
	if c.AutoApprove {
		c.Gov.LogDecision("controller", "approve", "auto-approve enabled", 1.0, nil)
		return set.Items()
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println("Proposed scenarios:")
		for i, s := range set.Items() {
			fmt.Printf("  [%d] (%s) %s\n", i, s.Priority, s.Description)
		}
		fmt.Print("approve / remove <indices> / refine <feedback>: ")
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		action := c.classifyApproval(ctx, line)
		c.Gov.LogDecision("controller", "classify_approval", line, 0.85, map[string]interface{}{"action": action.Action})

		switch action.Action {
		case "approve":
			return set.Items()
		case "remove":
			items := set.Items()
			toRemove := map[int]bool{}
			for _, idx := range action.Indices {
				toRemove[idx] = true
			}
			set = scenario.NewSet()
			for i, s := range items {
				if !toRemove[i] {
					set.Add(s)
				}
			}
		case "refine":
			refined := c.refineScenarios(ctx, set.Items(), action.Feedback)
			set = scenario.NewSet(refined...)
		}
	}
}

type approvalAction struct {
	Action   string `json:"action"`
	Indices  []int  `json:"indices"`
	Feedback string `json:"feedback"`
}

func (c *Controller) classifyApproval(ctx context.Context, utterance string) approvalAction {
	content, _, _, err := c.Gateway.Call(ctx, "controller", approvalSystemPrompt, utterance, 0.0)
	if err != nil {
		return approvalAction{Action: "refine", Feedback: utterance}
	}
	var action approvalAction
	if jsonErr := json.Unmarshal([]byte(codeutil.Sanitize(content)), &action); jsonErr != nil {
		return approvalAction{Action: "refine", Feedback: utterance}
	}
	return action
}

func (c *Controller) refineScenarios(ctx context.Context, current []scenario.Scenario, feedback string) []scenario.Scenario {
	user := fmt.Sprintf("Current scenarios:\n%s\n\nOperator feedback: %s\n\nRespond with the revised JSON test_scenarios list.", summarizeScenarios(current), feedback)
	content, _, _, err := c.Gateway.Call(ctx, "controller", identificationSystemPrompt, user, 0.3)
	if err != nil {
		return current
	}
	var resp identificationResponse
	if jsonErr := json.Unmarshal([]byte(codeutil.Sanitize(content)), &resp); jsonErr != nil {
		return current
	}
	revised := make([]scenario.Scenario, 0, len(resp.TestScenarios))
	for _, raw := range resp.TestScenarios {
		if raw.ScenarioDescription == "" {
			continue
		}
		revised = append(revised, scenario.New(raw.ScenarioDescription, raw.Priority))
	}
	if len(revised) == 0 {
		return current
	}
	return revised
}

func summarizeScenarios(scenarios []scenario.Scenario) string {
	var b strings.Builder
	for i, s := range scenarios {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, s.Priority, s.Description)
	}
	return b.String()
}

func severeSecurityCount(issues []SecurityIssue) int {
	count := 0
	for _, i := range issues {
		if i.IsSevere() {
			count++
		}
	}
	return count
}

func securityFeedback(issues []SecurityIssue) string {
	var b strings.Builder
	for _, i := range issues {
		if !i.IsSevere() {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s at %s: %s\n", i.Severity, i.Issue, i.Location, i.Recommendation)
	}
	return b.String()
}

func firstSyntaxIssue(code string) string {
	valid, message, syntaxErr := codeutil.ValidateSyntax(code)
	if valid || syntaxErr == nil {
		return ""
	}
	return "line " + strconv.Itoa(syntaxErr.Line) + ": " + message
}

// finish writes the run's artifacts and returns the final result.
func (c *Controller) finish(ctx context.Context, status Status, iterations int, coverage float64, testFile string, start time.Time, eval EvaluationOutput) RunResult {
	elapsed := time.Since(start)

	c.writePrompts()
	c.writeGovernance()
	c.writeReport(ctx, status, iterations, coverage, testFile, elapsed, eval)

	return RunResult{
		Status:        status,
		Iterations:    iterations,
		FinalCoverage: coverage,
		TestFilePath:  testFile,
		Elapsed:       elapsed,
	}
}

func (c *Controller) writePrompts() {
	path := filepath.Join(c.OutputDir, fmt.Sprintf("prompts_%s.json", c.runID))
	records := c.Gateway.Records()
	model := ""
	if len(records) > 0 {
		model = records[len(records)-1].Model
	}
	payload := map[string]interface{}{
		"run_id":        c.runID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"model":         model,
		"total_prompts": len(records),
		"prompts":       records,
	}
	if err := writeJSON(path, payload); err == nil {
		fmt.Printf("Prompts saved: %s\n", pathutil.SanitizePathForDisplay(path))
	}
}

func (c *Controller) writeGovernance() {
	path := filepath.Join(c.OutputDir, fmt.Sprintf("governance_%s.json", c.runID))
	_ = c.Gov.ExportAuditTrail(path)
}

func (c *Controller) writeReport(ctx context.Context, status Status, iterations int, coverage float64, testFile string, elapsed time.Duration, eval EvaluationOutput) {
	path := filepath.Join(c.OutputDir, fmt.Sprintf("report_%s.md", c.runID))

	var b strings.Builder
	fmt.Fprintf(&b, "# Pipeline Run %s (%s)\n\n", c.runName, c.runID)
	fmt.Fprintf(&b, "Status: %s\n\n", status)

	if summary := c.summarizeRun(ctx, status, coverage, eval); summary != "" {
		fmt.Fprintf(&b, "%s\n\n", summary)
	}

	fmt.Fprintf(&b, "## Metrics\n\n| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Coverage | %.1f%% |\n", coverage)
	fmt.Fprintf(&b, "| Mutation score | %.1f%% |\n", eval.MutationScore)
	fmt.Fprintf(&b, "| Tests passed | %d/%d |\n", eval.ExecutionSummary.Passed, eval.ExecutionSummary.Total)
	fmt.Fprintf(&b, "| Iterations | %d |\n", iterations)
	fmt.Fprintf(&b, "| Elapsed | %s |\n\n", elapsed.Round(time.Second))

	fmt.Fprintf(&b, "## Timing\n\n| Stage | Elapsed |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total | %s |\n", elapsed.Round(time.Second))
	fmt.Fprintf(&b, "| Average per iteration | %s |\n\n", averagePerIteration(elapsed, iterations))

	if len(eval.SecurityIssues) > 0 {
		fmt.Fprintf(&b, "## Security\n\n")
		for i, issue := range eval.SecurityIssues {
			if i >= 5 {
				fmt.Fprintf(&b, "- ...and %d more\n", len(eval.SecurityIssues)-5)
				break
			}
			fmt.Fprintf(&b, "- [%s] %s at %s: %s\n", issue.Severity, issue.Issue, issue.Location, issue.Recommendation)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "## Test file\n\n%s\n", testFile)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err == nil {
		fmt.Printf("Report saved: %s\n", pathutil.SanitizePathForDisplay(path))
	}
}

// summarizeRun asks the gateway for a short closing summary of the run. An
// empty string is returned, not an error, on any failure, since the report
// is still useful without it.
func (c *Controller) summarizeRun(ctx context.Context, status Status, coverage float64, eval EvaluationOutput) string {
	user := fmt.Sprintf(
		"Status: %s\nCoverage: %.1f%%\nMutation score: %.1f%%\nTests: %d/%d passed\nSecurity issues: %d (severe: %t)",
		status, coverage, eval.MutationScore, eval.ExecutionSummary.Passed, eval.ExecutionSummary.Total,
		len(eval.SecurityIssues), eval.HasSevereSecurityIssues,
	)
	content, _, _, err := c.Gateway.Call(ctx, "controller", reportSystemPrompt, user, 0.4)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(content)
}

func averagePerIteration(elapsed time.Duration, iterations int) time.Duration {
	if iterations <= 0 {
		return 0
	}
	return (elapsed / time.Duration(iterations)).Round(time.Second)
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
