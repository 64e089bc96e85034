package coverage

import (
	"sort"

	"github.com/loopstack/pipeline/internal/codeutil"
)

// FunctionCoverage reports how much of a single definition's executable
// line range was exercised.
type FunctionCoverage struct {
	Name      string
	Kind      string
	Start     int
	End       int
	Total     int
	Covered   int
	Uncovered []int
	Percent   float64
}

// FileReport is the per-file coverage result: overall line coverage plus a
// breakdown per function/class definition.
type FileReport struct {
	Path          string
	TotalLines    int
	CoveredLines  int
	UncoveredLines []int
	Percent       float64
	Functions     []FunctionCoverage
}

func toSortedSlice(s map[int]bool) []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// AnalyzeFile computes per-file and per-function coverage for source given
// the executed/missing/excluded line sets a test runner reported.
//
// executable = (executed ∪ missing) \ excluded; pct = |executed ∩ executable| / |executable|.
func AnalyzeFile(path, source string, executed, missing, excluded map[int]bool) FileReport {
	executable := make(map[int]bool)
	for l := range executed {
		if !excluded[l] {
			executable[l] = true
		}
	}
	for l := range missing {
		if !excluded[l] {
			executable[l] = true
		}
	}

	covered := make(map[int]bool)
	uncovered := make(map[int]bool)
	for l := range executable {
		if executed[l] {
			covered[l] = true
		} else {
			uncovered[l] = true
		}
	}

	defs := codeutil.ExtractDefinitions(source, true)
	functions := make([]FunctionCoverage, 0, len(defs))
	for _, d := range defs {
		fnTotal, fnCovered, fnUncovered := 0, 0, make([]int, 0)
		for l := range executable {
			if l < d.StartLine || l > d.EndLine {
				continue
			}
			fnTotal++
			if executed[l] {
				fnCovered++
			} else {
				fnUncovered = append(fnUncovered, l)
			}
		}
		sort.Ints(fnUncovered)
		functions = append(functions, FunctionCoverage{
			Name:      d.Name,
			Kind:      string(d.Kind),
			Start:     d.StartLine,
			End:       d.EndLine,
			Total:     fnTotal,
			Covered:   fnCovered,
			Uncovered: fnUncovered,
			Percent:   pct(fnCovered, fnTotal),
		})
	}

	return FileReport{
		Path:           path,
		TotalLines:     len(executable),
		CoveredLines:   len(covered),
		UncoveredLines: toSortedSlice(uncovered),
		Percent:        pct(len(covered), len(executable)),
		Functions:      functions,
	}
}

// OverallPercent computes the weighted coverage percentage across many
// file reports (weighted by each file's total executable lines).
func OverallPercent(reports map[string]FileReport) float64 {
	var totalLines, coveredLines int
	for _, r := range reports {
		totalLines += r.TotalLines
		coveredLines += r.CoveredLines
	}
	return pct(coveredLines, totalLines)
}

// FormatUncoveredAreas renders a condensed line-range summary per file,
// suitable for embedding directly in an LLM prompt.
func FormatUncoveredAreas(reports map[string]FileReport) string {
	paths := make([]string, 0, len(reports))
	for p := range reports {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := ""
	for _, p := range paths {
		r := reports[p]
		if len(r.UncoveredLines) == 0 {
			continue
		}
		out += p + ": " + formatRanges(r.UncoveredLines) + "\n"
	}
	return out
}

func formatRanges(lines []int) string {
	if len(lines) == 0 {
		return ""
	}
	var ranges []string
	start := lines[0]
	prev := lines[0]
	flush := func(end int) {
		if start == end {
			ranges = append(ranges, itoa(start))
		} else {
			ranges = append(ranges, itoa(start)+"-"+itoa(end))
		}
	}
	for _, l := range lines[1:] {
		if l == prev+1 {
			prev = l
			continue
		}
		flush(prev)
		start, prev = l, l
	}
	flush(prev)

	out := ranges[0]
	for _, r := range ranges[1:] {
		out += ", " + r
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
