package fileutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loopstack/pipeline/internal/codeutil"
)

// excludedDirNames are directory basenames that are never descended into
// when scanning a codebase for generation/identification purposes. Any
// basename starting with "." is excluded regardless of this set.
var excludedDirNames = map[string]bool{
	".git":          true,
	"__pycache__":   true,
	"venv":          true,
	".venv":         true,
	"node_modules":  true,
	".pytest_cache": true,
	"tests":         true,
	"test":          true,
	"__tests__":     true,
}

// ScanSourceFiles recursively enumerates files under root with extension
// ext (including the leading dot, e.g. ".py"), excluding directories named
// in excludedDirNames (or any hidden directory), any git-related file, and
// files that are themselves test files: named with a "test_" prefix, a
// "_test<ext>" suffix, or named "conftest<ext>". Directory pruning uses
// WalkDirectory/IsHiddenPath and per-file admission delegates to
// ShouldProcessFile, so a scan and a FilterFiles call over the same tree
// apply identical exclusion rules.
func ScanSourceFiles(root, ext string) ([]string, error) {
	var files []string
	opts := FilteringOptions{IncludeExts: []string{ext}, IgnoreGitFiles: true}

	err := WalkDirectory(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (IsHiddenPath(name) || excludedDirNames[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFileName(name, ext) {
			return nil
		}
		if !ShouldProcessFile(path, opts).ShouldProcess {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func isTestFileName(name, ext string) bool {
	if strings.HasPrefix(name, "test_") {
		return true
	}
	if strings.HasSuffix(name, "_test"+ext) {
		return true
	}
	if name == "conftest"+ext {
		return true
	}
	return false
}

// defaultChunkMaxLines is the approximate per-chunk line budget used by
// Chunk when the caller doesn't specify one.
const defaultChunkMaxLines = 100

// Chunk reads each file in files and greedily packs its top-level
// definitions into chunks of at most maxLines cumulative body length, so
// the IdentificationAgent can issue one LLM call per chunk instead of one
// per file. A definition that alone exceeds maxLines becomes its own
// chunk. Files whose definitions cannot be extracted (no def/class headers
// found) fall back to fixed-size line windows. Every chunk is prefixed
// with a "# File: <path>" comment line so the LLM output can be grounded
// back to a source location.
func Chunk(files []string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = defaultChunkMaxLines
	}

	var chunks []string
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		source := string(raw)
		lines := strings.Split(source, "\n")

		defs := codeutil.ExtractDefinitions(source, false)
		if len(defs) == 0 {
			chunks = append(chunks, fixedSizeWindows(path, lines, maxLines)...)
			continue
		}

		var current strings.Builder
		currentLines := 0
		flush := func() {
			if currentLines > 0 {
				chunks = append(chunks, "# File: "+path+"\n"+current.String())
				current.Reset()
				currentLines = 0
			}
		}

		for _, d := range defs {
			start := d.StartLine - 1
			end := d.EndLine
			if start < 0 {
				start = 0
			}
			if end > len(lines) {
				end = len(lines)
			}
			body := strings.Join(lines[start:end], "\n")
			bodyLines := end - start

			if bodyLines > maxLines {
				flush()
				chunks = append(chunks, "# File: "+path+"\n"+body)
				continue
			}
			if currentLines+bodyLines > maxLines {
				flush()
			}
			current.WriteString(body)
			current.WriteString("\n")
			currentLines += bodyLines
		}
		flush()
	}

	return chunks, nil
}

func fixedSizeWindows(path string, lines []string, maxLines int) []string {
	var windows []string
	for i := 0; i < len(lines); i += maxLines {
		end := i + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		windows = append(windows, "# File: "+path+"\n"+strings.Join(lines[i:end], "\n"))
	}
	return windows
}

const truncationMarker = "\n# ... (truncated)"

// TruncateAtBoundary shortens code to at most maxChars, preferring to cut
// at the start of the last top-level definition header inside the limit;
// failing that, at the last blank line; failing that, at the last
// newline. A truncation marker is appended whenever a cut is made.
func TruncateAtBoundary(code string, maxChars int) string {
	if len(code) <= maxChars {
		return code
	}

	window := code[:maxChars]

	if cut := lastDefinitionHeaderOffset(code, maxChars); cut > 0 {
		return code[:cut] + truncationMarker
	}

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return window[:idx] + truncationMarker
	}

	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return window[:idx] + truncationMarker
	}

	return window + truncationMarker
}

// lastDefinitionHeaderOffset returns the byte offset of the last top-level
// definition header that starts before limit, or -1 if none is found.
func lastDefinitionHeaderOffset(code string, limit int) int {
	defs := codeutil.ExtractDefinitions(code, false)
	if len(defs) == 0 {
		return -1
	}

	lines := strings.Split(code, "\n")
	best := -1
	offset := 0
	lineOffsets := make([]int, len(lines))
	for i, l := range lines {
		lineOffsets[i] = offset
		offset += len(l) + 1
	}

	for _, d := range defs {
		idx := d.StartLine - 1
		if idx < 0 || idx >= len(lineOffsets) {
			continue
		}
		if lineOffsets[idx] < limit {
			best = lineOffsets[idx]
		}
	}
	return best
}
