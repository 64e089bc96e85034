package codeutil

import (
	"regexp"
	"strings"
)

// Hallucination is an import the generated code references that cannot be
// satisfied by the standard library, the codebase's own modules, or any
// package the dependency resolver has declared.
type Hallucination struct {
	Name   string
	Reason string
}

// stdlibModules is the small set of modules from the pipeline's dynamic
// target language standard library that generated tests commonly reach
// for. It is intentionally not exhaustive — it exists to avoid false
// positives on the imports test code legitimately needs (os, sys, json,
// mocking, time), not to be a complete stdlib index.
var stdlibModules = map[string]struct{}{
	"os": {}, "sys": {}, "re": {}, "json": {}, "time": {}, "math": {},
	"pathlib": {}, "typing": {}, "dataclasses": {}, "collections": {},
	"itertools": {}, "functools": {}, "unittest": {}, "pytest": {},
	"unittest.mock": {}, "mock": {}, "subprocess": {}, "tempfile": {},
	"io": {}, "random": {}, "string": {}, "datetime": {}, "logging": {},
	"asyncio": {}, "abc": {}, "enum": {}, "contextlib": {}, "copy": {},
	"traceback": {}, "warnings": {}, "shutil": {}, "glob": {}, "csv": {},
}

var importPattern = regexp.MustCompile(`(?m)^\s*(?:from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import|import\s+([A-Za-z_][A-Za-z0-9_.]*))`)

// DetectHallucinations parses import statements out of code and flags any
// module that is satisfiable by none of: the target language's standard
// library, a file name present in moduleNames (the codebase's own modules,
// by stem), or a package name present in declaredPackages (whatever the
// dependency resolver has decided to install).
func DetectHallucinations(code string, moduleNames, declaredPackages []string) []Hallucination {
	known := make(map[string]struct{}, len(moduleNames))
	for _, m := range moduleNames {
		known[m] = struct{}{}
	}
	declared := make(map[string]struct{}, len(declaredPackages))
	for _, p := range declaredPackages {
		declared[normalizePackageName(p)] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []Hallucination

	for _, m := range importPattern.FindAllStringSubmatch(code, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		root := strings.SplitN(raw, ".", 2)[0]
		if root == "" {
			continue
		}
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}

		if _, ok := stdlibModules[root]; ok {
			continue
		}
		if _, ok := known[root]; ok {
			continue
		}
		if _, ok := declared[normalizePackageName(root)]; ok {
			continue
		}

		out = append(out, Hallucination{
			Name:   raw,
			Reason: "module '" + root + "' is not a standard library module, a file in the source tree, or a declared dependency",
		})
	}

	return out
}

func normalizePackageName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return s
}
