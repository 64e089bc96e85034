package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopstack/pipeline/internal/codeutil"
	"github.com/loopstack/pipeline/internal/governance"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/scenario"
)

// maxSyntaxFixAttempts bounds the implementation agent's self-repair loop
// for syntax errors before it gives up on a generation attempt.
const maxSyntaxFixAttempts = 3

// syntaxFixContextLines is how many lines of surrounding code are shown
// above and below a reported syntax error, matching the window the
// reference pipeline builds around its own error markers.
const syntaxFixContextLines = 5

// ImplementationAgent generates runnable test code from approved scenarios,
// then repairs syntax errors and hallucinated references before accepting
// the result.
type ImplementationAgent struct {
	Gateway   *Gateway
	Gov       *governance.Log
	Logger    logutil.LoggerInterface
	OutputDir string
}

// GenerateResult is what a generation or improvement attempt produced.
type GenerateResult struct {
	Code     string
	FilePath string
	Valid    bool
}

// Run generates a new test file from scenarios and the codebase's source
// chunks, runs it through the syntax and hallucination repair loops, and
// writes the accepted result to OutputDir.
func (a *ImplementationAgent) Run(ctx context.Context, scenarios []scenario.Scenario, chunks []string, moduleNames []string, declaredPackages []string) (GenerateResult, error) {
	user := a.buildGenerationPrompt(scenarios, chunks, nil, "", "", "")
	return a.generateAndRepair(ctx, user, moduleNames, declaredPackages, "")
}

// Improve regenerates a test file that already exists, folding in the prior
// test code, the areas coverage reported as uncovered, outstanding syntax
// errors, and any security findings, and overwrites the same file path on
// success.
func (a *ImplementationAgent) Improve(ctx context.Context, scenarios []scenario.Scenario, chunks []string, moduleNames, declaredPackages []string, existingPath, existingCode, uncoveredAreas, syntaxFeedback, securityFeedback string) (GenerateResult, error) {
	user := a.buildGenerationPrompt(scenarios, chunks, nil, existingCode, uncoveredAreas, syntaxFeedback)
	if securityFeedback != "" {
		user += "\n\nOutstanding security findings to address:\n" + securityFeedback
	}
	return a.generateAndRepair(ctx, user, moduleNames, declaredPackages, existingPath)
}

func (a *ImplementationAgent) buildGenerationPrompt(scenarios []scenario.Scenario, chunks []string, _ []string, existingCode, uncoveredAreas, syntaxFeedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approved test scenarios:\n")
	for _, s := range scenarios {
		fmt.Fprintf(&b, "- [%s] %s\n", s.Priority, s.Description)
	}

	b.WriteString("\nSource code chunks:\n")
	limit := len(chunks)
	if limit > 10 {
		limit = 10
	}
	for _, c := range chunks[:limit] {
		b.WriteString(c)
		b.WriteString("\n---\n")
	}

	if existingCode != "" {
		b.WriteString("\nExisting test file to improve (preserve passing tests):\n")
		b.WriteString(existingCode)
	}
	if uncoveredAreas != "" {
		b.WriteString("\nUncovered areas to add tests for:\n")
		b.WriteString(uncoveredAreas)
	}
	if syntaxFeedback != "" {
		b.WriteString("\nSyntax issues to avoid:\n")
		b.WriteString(syntaxFeedback)
	}

	return b.String()
}

func (a *ImplementationAgent) generateAndRepair(ctx context.Context, user string, moduleNames, declaredPackages []string, reuseFilePath string) (GenerateResult, error) {
	content, model, isFallback, err := a.Gateway.Call(ctx, "implementation", implementationSystemPrompt, user, 0.2)
	if a.Gov != nil {
		a.Gov.LogDecision("implementation", "generate", "initial generation", decisionConfidence(isFallback), map[string]interface{}{
			"model":       model,
			"is_fallback": isFallback,
		})
	}
	if err != nil {
		if a.Logger != nil {
			a.Logger.WarnContext(ctx, "implementation generation failed: %v", err)
		}
		return GenerateResult{}, err
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "implementation generated via %s (fallback=%t)", model, isFallback)
	}

	code := codeutil.Sanitize(content)

	code, valid := a.repairSyntax(ctx, code)
	code, _ = a.repairHallucinations(ctx, code, moduleNames, declaredPackages)

	path := reuseFilePath
	if path == "" {
		path = filepath.Join(a.OutputDir, fmt.Sprintf("test_generated_%d.py", time.Now().UnixNano()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return GenerateResult{}, err
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{Code: code, FilePath: path, Valid: valid}, nil
}

// repairSyntax runs up to maxSyntaxFixAttempts rounds of validate-then-fix,
// stopping as soon as the code validates or the attempts are exhausted.
func (a *ImplementationAgent) repairSyntax(ctx context.Context, code string) (string, bool) {
	for attempt := 0; attempt < maxSyntaxFixAttempts; attempt++ {
		valid, _, syntaxErr := codeutil.ValidateSyntax(code)
		if valid {
			return code, true
		}
		if syntaxErr == nil {
			return code, false
		}

		errContext := buildErrorContext(code, syntaxErr.Line, syntaxFixContextLines)
		user := fmt.Sprintf("Error: %s (line %d, column %d)\n\nContext:\n%s\n\nFull source:\n%s",
			syntaxErr.Message, syntaxErr.Line, syntaxErr.Column, errContext, code)

		fixed, _, _, err := a.Gateway.Call(ctx, "implementation", syntaxFixSystemPrompt, user, 0.1)
		if a.Gov != nil {
			a.Gov.LogDecision("implementation", "fix_syntax", syntaxErr.Message, 0.8, map[string]interface{}{
				"attempt": attempt + 1,
				"line":    syntaxErr.Line,
			})
		}
		if err != nil {
			return code, false
		}
		code = codeutil.Sanitize(fixed)
	}

	valid, _, _ := codeutil.ValidateSyntax(code)
	return code, valid
}

// repairHallucinations asks for one corrective pass when non-existent
// symbols are referenced, but only keeps the fix if it actually clears the
// detector; otherwise the original code is kept since a failed fix attempt
// is no better than the problem it tried to solve.
func (a *ImplementationAgent) repairHallucinations(ctx context.Context, code string, moduleNames, declaredPackages []string) (string, []codeutil.Hallucination) {
	found := codeutil.DetectHallucinations(code, moduleNames, declaredPackages)
	if len(found) == 0 {
		return code, nil
	}

	var names strings.Builder
	for _, h := range found {
		fmt.Fprintf(&names, "- %s (%s)\n", h.Name, h.Reason)
	}

	user := fmt.Sprintf("Non-existent references found:\n%s\nFull source:\n%s", names.String(), code)
	fixed, _, _, err := a.Gateway.Call(ctx, "implementation", hallucinationFixSystemPrompt, user, 0.1)
	if a.Gov != nil {
		a.Gov.LogDecision("implementation", "fix_hallucinations", fmt.Sprintf("%d references", len(found)), 0.7, nil)
	}
	if err != nil {
		return code, found
	}

	candidate := codeutil.Sanitize(fixed)
	if remaining := codeutil.DetectHallucinations(candidate, moduleNames, declaredPackages); len(remaining) == 0 {
		return candidate, nil
	}
	return code, found
}

// buildErrorContext renders the lines around line (1-indexed) with a ">>>"
// marker, matching the window the reference pipeline shows the model when
// asking it to fix a reported syntax error.
func buildErrorContext(code string, line, window int) string {
	lines := strings.Split(code, "\n")
	start := line - 1 - window
	if start < 0 {
		start = 0
	}
	end := line - 1 + window
	if end >= len(lines) {
		end = len(lines) - 1
	}

	var b strings.Builder
	for i := start; i <= end && i < len(lines); i++ {
		marker := "    "
		if i == line-1 {
			marker = ">>> "
		}
		fmt.Fprintf(&b, "%s%d: %s\n", marker, i+1, lines[i])
	}
	return b.String()
}
