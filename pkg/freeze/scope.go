// Package freeze computes a single root hash over a declared governed-file
// scope, persists it as a lock document, and later re-verifies that the
// live tree is exactly the locked file set with identical hashes. Any
// single-bit change to an in-scope file, or any file entering or leaving
// scope, changes the root hash and fails verification.
package freeze

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clawdbot/sentinel/pkg/canonicalize"
)

// ScopeDefinition is the deterministic predicate over governance-relevant
// files. Include and Exclude patterns match slash-relative paths; a pattern
// ending in "/**" matches everything under that directory prefix, otherwise
// path.Match semantics apply.
type ScopeDefinition struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// DefaultScope covers the usual governance surface: configuration, schemas,
// and policy tables, excluding build output and generated reports.
func DefaultScope() ScopeDefinition {
	return ScopeDefinition{
		Include: []string{
			"config/**",
			"policies/**",
			"schemas/**",
			"*.yaml",
			"*.yml",
		},
		Exclude: []string{
			"out/**",
			"reports/**",
			"*.lock.json",
			"*.tar.gz",
		},
	}
}

// Hash returns the canonical hash of the scope definition itself, recorded
// in the lock so a verifier can detect scope-definition changes.
func (s ScopeDefinition) Hash() (string, error) {
	h, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return "", fmt.Errorf("freeze: hash scope definition: %w", err)
	}
	return "sha256:" + h, nil
}

// Matches reports whether a slash-relative path is in scope.
func (s ScopeDefinition) Matches(rel string) bool {
	included := false
	for _, pat := range s.Include {
		if matchPattern(pat, rel) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pat := range s.Exclude {
		if matchPattern(pat, rel) {
			return false
		}
	}
	return true
}

// Resolve walks root and returns the sorted slash-relative paths of every
// in-scope regular file.
func (s ScopeDefinition) Resolve(root string) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Skip VCS internals entirely.
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if s.Matches(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("freeze: resolve scope: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// matchPattern applies the scope pattern grammar: "dir/**" is a prefix
// match, anything else is path.Match against the full relative path.
func matchPattern(pattern, rel string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	ok, err := path.Match(pattern, rel)
	if err != nil {
		return false
	}
	return ok
}
