package coverage

import (
	"regexp"
	"strings"
)

// header describes one block-opening line in the pipeline's Python-shaped
// target language: a keyword, its indentation, the 1-indexed line it starts
// on, and the 1-indexed exclusive line its body ends before (the same
// indentation-based extent rule codeutil.ExtractDefinitions uses).
type header struct {
	keyword   string
	indent    int
	line      int
	bodyEnd   int // exclusive
}

var headerPattern = regexp.MustCompile(`^(\s*)(if|elif|else|try|except|finally|for|while|match|case)\b`)

func scanHeaders(lines []string) []header {
	var hits []header
	for i, line := range lines {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasSuffix(trimmed, ":") {
			continue
		}
		hits = append(hits, header{keyword: m[2], indent: len(m[1]), line: i + 1})
	}
	for idx := range hits {
		h := &hits[idx]
		end := len(lines)
		for j := h.line; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if indentOf(lines[j]) <= h.indent {
				end = j + 1 // 1-indexed line number of the boundary (exclusive)
				break
			}
		}
		h.bodyEnd = end
	}
	return hits
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 8
		default:
			return n
		}
	}
	return n
}

// bodyLines returns the set of line numbers (1-indexed) spanned by a
// header's body: from the line after its header through bodyEnd-1.
func (h header) bodyLines() map[int]bool {
	out := make(map[int]bool)
	for l := h.line + 1; l < h.bodyEnd; l++ {
		out[l] = true
	}
	// A single-line block (e.g. "if x: return 1" is not emitted by this
	// scanner since we require a trailing colon with nothing else on the
	// line) always has at least its header line counted too, so a
	// zero-body block still has something to check for coverage.
	out[h.line] = true
	return out
}

func anyExecuted(lines map[int]bool, executed map[int]bool) bool {
	for l := range lines {
		if executed[l] {
			return true
		}
	}
	return false
}
