// Package coverage implements the pipeline's three coverage analyzers —
// file/function, branch, and statement — as pure functions of
// (source, executed, missing, excluded) line sets, mirroring the original
// Python implementation's analyze_coverage/analyze_branch_coverage/
// analyze_statement_coverage.
package coverage

import "strings"

// BranchArm is one arm of a branch construct: its label, the line it
// starts on, and whether any line in its body executed.
type BranchArm struct {
	Name      string
	StartLine int
	Covered   bool
}

// Branch is one branch construct (if/try/for/while/match) with its arms.
type Branch struct {
	Line         int
	Construct    string
	Arms         []BranchArm
	FullyCovered bool
}

// BranchReport aggregates every branch construct found in a file.
type BranchReport struct {
	TotalBranches    int
	FullyCovered     int
	PartiallyCovered int
	Uncovered        int
	Branches         []Branch
	CoveragePercent  float64
}

func fullyCovered(arms []BranchArm) bool {
	for _, a := range arms {
		if !a.Covered {
			return false
		}
	}
	return true
}

func anyCovered(arms []BranchArm) bool {
	for _, a := range arms {
		if a.Covered {
			return true
		}
	}
	return false
}

// AnalyzeBranches computes branch coverage for source given the set of
// executed line numbers.
//
// Go has no AST for the pipeline's dynamic target language, so branch
// constructs are located with an indentation-based block scanner
// (internal/coverage/blocks.go) rather than a parse tree; this mirrors the
// approximation codeutil.ExtractDefinitions makes for definition
// boundaries. The "implicit-else" arm of an if without an else clause is,
// as in the original, approximated as covered iff the if-header line
// executed — line traces alone cannot distinguish the false branch from
// the construct never being reached.
func AnalyzeBranches(source string, executed map[int]bool) BranchReport {
	lines := strings.Split(source, "\n")
	headers := scanHeaders(lines)

	var branches []Branch
	used := make([]bool, len(headers))

	isContiguous := func(prev, next header) bool {
		return next.indent == prev.indent && next.line <= prev.bodyEnd
	}

	for i := 0; i < len(headers); i++ {
		if used[i] {
			continue
		}
		h := headers[i]
		switch h.keyword {
		case "if":
			used[i] = true
			var arms []BranchArm
			arms = append(arms, BranchArm{Name: "if-body", StartLine: h.line, Covered: anyExecuted(h.bodyLines(), executed)})
			prev := h
			hasElse := false
			for j := i + 1; j < len(headers); j++ {
				if used[j] || !isContiguous(prev, headers[j]) {
					break
				}
				switch headers[j].keyword {
				case "elif":
					used[j] = true
					arms = append(arms, BranchArm{Name: "elif-body", StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
					prev = headers[j]
				case "else":
					used[j] = true
					arms = append(arms, BranchArm{Name: "else", StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
					hasElse = true
					prev = headers[j]
				default:
					j = len(headers) // break outer via flag below
				}
				if hasElse {
					break
				}
			}
			if !hasElse {
				arms = append(arms, BranchArm{Name: "implicit-else", StartLine: h.line, Covered: executed[h.line]})
			}
			branches = append(branches, Branch{Line: h.line, Construct: "if", Arms: arms, FullyCovered: fullyCovered(arms)})

		case "try":
			used[i] = true
			var arms []BranchArm
			arms = append(arms, BranchArm{Name: "try-body", StartLine: h.line, Covered: anyExecuted(h.bodyLines(), executed)})
			prev := h
			for j := i + 1; j < len(headers); j++ {
				if used[j] || !isContiguous(prev, headers[j]) {
					break
				}
				switch headers[j].keyword {
				case "except":
					used[j] = true
					arms = append(arms, BranchArm{Name: "except", StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
					prev = headers[j]
				case "else":
					used[j] = true
					arms = append(arms, BranchArm{Name: "try-else", StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
					prev = headers[j]
				case "finally":
					used[j] = true
					arms = append(arms, BranchArm{Name: "finally", StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
					prev = headers[j]
				default:
					j = len(headers)
				}
			}
			branches = append(branches, Branch{Line: h.line, Construct: "try", Arms: arms, FullyCovered: fullyCovered(arms)})

		case "for", "while":
			used[i] = true
			var arms []BranchArm
			arms = append(arms, BranchArm{Name: h.keyword + "-body", StartLine: h.line, Covered: anyExecuted(h.bodyLines(), executed)})
			if i+1 < len(headers) && !used[i+1] && isContiguous(h, headers[i+1]) && headers[i+1].keyword == "else" {
				used[i+1] = true
				arms = append(arms, BranchArm{Name: h.keyword + "-else", StartLine: headers[i+1].line, Covered: anyExecuted(headers[i+1].bodyLines(), executed)})
				branches = append(branches, Branch{Line: h.line, Construct: h.keyword, Arms: arms, FullyCovered: fullyCovered(arms)})
			}
			// Loops without an else clause are not branch constructs per
			// the spec: only loops with an else are recorded.

		case "match":
			used[i] = true
			var arms []BranchArm
			for j := i + 1; j < len(headers); j++ {
				if used[j] || headers[j].indent <= h.indent {
					break
				}
				if headers[j].keyword == "case" {
					used[j] = true
					label := "case"
					arms = append(arms, BranchArm{Name: label, StartLine: headers[j].line, Covered: anyExecuted(headers[j].bodyLines(), executed)})
				}
			}
			if len(arms) > 0 {
				branches = append(branches, Branch{Line: h.line, Construct: "match", Arms: arms, FullyCovered: fullyCovered(arms)})
			}
		}
	}

	total := len(branches)
	full := 0
	partial := 0
	for _, b := range branches {
		if b.FullyCovered {
			full++
		} else if anyCovered(b.Arms) {
			partial++
		}
	}

	return BranchReport{
		TotalBranches:    total,
		FullyCovered:     full,
		PartiallyCovered: partial,
		Uncovered:        total - full - partial,
		Branches:         branches,
		CoveragePercent:  pct(full, total),
	}
}

func pct(covered, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return round1(float64(covered) / float64(total) * 100)
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
