package codeutil

import (
	"regexp"
	"strings"
)

// DefinitionKind names the kind of top-level construct a Definition
// describes.
type DefinitionKind string

const (
	KindFunction      DefinitionKind = "function"
	KindAsyncFunction DefinitionKind = "async_function"
	KindClass         DefinitionKind = "class"
)

// Definition describes one function/class definition found in source text,
// in source-language terms (the target language is Python-shaped: blocks
// are delimited by indentation, headers end in a colon).
type Definition struct {
	Name      string
	Kind      DefinitionKind
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
}

var defHeader = regexp.MustCompile(`^(\s*)(async\s+def|def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// ExtractDefinitions walks source line-by-line looking for def/class headers
// and determines each definition's extent by indentation: a definition ends
// at the line before the next line, at or below its own indentation, that
// is non-blank and not a comment.
//
// There is no AST for the pipeline's dynamic target language available in
// Go, so this is a deliberate indentation-based approximation: it is exact
// for well-formed, consistently indented source (which LLM-generated test
// files and hand-written source both are in practice) and is the same
// granularity the FileScanner and truncate-at-boundary logic need —
// definition boundaries, not a full parse tree.
//
// When recursive is false, only top-level (column 0) definitions are
// returned; nested defs/classes are skipped. When true, every definition at
// any indentation is returned, each with its own extent.
func ExtractDefinitions(source string, recursive bool) []Definition {
	lines := strings.Split(source, "\n")

	type hit struct {
		indent int
		kind    DefinitionKind
		name    string
		line    int
	}
	var hits []hit

	for i, line := range lines {
		m := defHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := len(m[1])
		if !recursive && indent != 0 {
			continue
		}
		kind := KindFunction
		switch {
		case strings.HasPrefix(m[2], "async"):
			kind = KindAsyncFunction
		case m[2] == "class":
			kind = KindClass
		}
		hits = append(hits, hit{indent: indent, kind: kind, name: m[3], line: i + 1})
	}

	defs := make([]Definition, 0, len(hits))
	for idx, h := range hits {
		end := len(lines)
		for j := h.line; j < len(lines); j++ {
			candidate := lines[j]
			trimmed := strings.TrimSpace(candidate)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if currentIndent(candidate) <= h.indent {
				end = j // 0-indexed line j is the first line past the def; end is exclusive there, so line number j (1-indexed) is the last line of the def body
				break
			}
		}
		_ = idx
		defs = append(defs, Definition{
			Name:      h.name,
			Kind:      h.kind,
			StartLine: h.line,
			EndLine:   end,
		})
	}
	return defs
}

func currentIndent(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}
