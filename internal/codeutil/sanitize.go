package codeutil

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*)?\\s*\\n?(.*?)```")

// Sanitize strips markdown code-fence formatting from an LLM response so the
// remainder can be treated as raw source. It is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	code := strings.TrimSpace(text)

	if strings.HasPrefix(code, "```") {
		if nl := strings.Index(code, "\n"); nl != -1 {
			code = code[nl+1:]
		} else {
			code = strings.TrimPrefix(code, "```")
		}
	}
	code = strings.TrimSuffix(strings.TrimRight(code, "\n\t "), "```")
	code = strings.TrimRight(code, "\n\t ")

	if strings.Contains(code, "```") {
		if m := fencedBlock.FindStringSubmatch(code); m != nil {
			code = strings.TrimSpace(m[1])
		}
	}

	code = strings.Trim(code, "`")
	return strings.TrimSpace(code)
}
