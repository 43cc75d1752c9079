// Package filter decides which changed paths are relevant.
//
// A Set is evaluated in a fixed precedence order:
//
//  1. user exclude patterns and ignore-file rules reject
//  2. user include patterns accept, overriding the default excludes
//  3. default excludes reject
//  4. anything else is accepted, unless include patterns were given, in
//     which case they act as an allowlist and unmatched paths are rejected
//
// A Set is immutable after New and safe for concurrent use.
package filter

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultExcludes are applied unless Options.NoDefaultExcludes is set:
// version control metadata, build output and editor droppings.
var DefaultExcludes = []string{
	".git",
	".hg",
	".svn",
	".jj",
	"_darcs",
	".bzr",
	"node_modules",
	"target",
	"__pycache__",
	"*.py[co]",
	".DS_Store",
	"*.swp",
	"*.swo",
	"*.swx",
	"*~",
	"#*#",
	".#*",
	"*.kate-swp",
}

// CaseMode selects how patterns compare letter case.
type CaseMode int

const (
	// CaseAuto is case-insensitive on darwin and windows, sensitive elsewhere.
	CaseAuto CaseMode = iota
	// CaseSensitive always compares case.
	CaseSensitive
	// CaseInsensitive never compares case.
	CaseInsensitive
)

func (m CaseMode) fold() bool {
	switch m {
	case CaseSensitive:
		return false
	case CaseInsensitive:
		return true
	default:
		return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
	}
}

// Options configures a Set.
type Options struct {
	// Roots are the watched directories relative patterns are matched against.
	Roots []string

	// Include patterns; when non-empty only matching paths are accepted.
	Include []string

	// Exclude patterns always reject.
	Exclude []string

	// IgnoreFiles are gitignore-style files loaded at construction.
	IgnoreFiles []string

	// NoDefaultExcludes disables DefaultExcludes.
	NoDefaultExcludes bool

	// Case selects case sensitivity. Fixed for the life of the Set.
	Case CaseMode
}

// Set is a compiled filter.
type Set struct {
	roots    []string
	includes []pattern
	excludes []pattern
	defaults []pattern
	ignores  []*IgnoreFile
	fold     bool
}

// New compiles the options into a Set. Any malformed pattern or unreadable
// ignore file is an error wrapping ErrBadPattern or the I/O error.
func New(opts Options) (*Set, error) {
	fold := opts.Case.fold()

	s := &Set{fold: fold}

	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
		s.roots = append(s.roots, abs)
	}

	var err error
	if s.includes, err = compilePatterns(opts.Include, fold); err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	if s.excludes, err = compilePatterns(opts.Exclude, fold); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	if !opts.NoDefaultExcludes {
		if s.defaults, err = compilePatterns(DefaultExcludes, fold); err != nil {
			return nil, fmt.Errorf("default excludes: %w", err)
		}
	}

	for _, path := range opts.IgnoreFiles {
		f, err := LoadIgnoreFile(path, fold)
		if err != nil {
			return nil, err
		}
		s.ignores = append(s.ignores, f)
	}

	return s, nil
}

// Matches reports whether a change to path is relevant.
func (s *Set) Matches(path string) bool {
	rel, abs := s.normalize(path)

	if anyMatch(s.excludes, rel, abs) {
		return false
	}
	for _, f := range s.ignores {
		if f.Excludes(path) {
			return false
		}
	}
	if anyMatch(s.includes, rel, abs) {
		return true
	}
	if anyMatch(s.defaults, rel, abs) {
		return false
	}
	return len(s.includes) == 0
}

// Prune reports whether a directory can be skipped entirely by the watcher,
// that is whether Matches rejects everything beneath it. An include pattern
// keeps default-excluded directories watched, and an ignore file with "!"
// rules never prunes.
func (s *Set) Prune(dir string) bool {
	rel, abs := s.normalize(dir)

	if anyMatch(s.excludes, rel, abs) {
		return true
	}
	for _, f := range s.ignores {
		if !f.HasWhitelist() && f.Excludes(dir) {
			return true
		}
	}
	return len(s.includes) == 0 && anyMatch(s.defaults, rel, abs)
}

// normalize returns path relative to the innermost root containing it and
// the absolute path, both slash-separated and case-folded when required.
func (s *Set) normalize(path string) (string, string) {
	abs := filepath.Clean(path)
	if a, err := filepath.Abs(path); err == nil {
		abs = a
	}

	rel := ""
	best := -1
	for _, root := range s.roots {
		r, err := filepath.Rel(root, abs)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > best {
			best = len(root)
			rel = r
		}
	}
	if best < 0 {
		rel = strings.TrimLeft(filepath.ToSlash(strings.TrimPrefix(abs, filepath.VolumeName(abs))), "/")
	}

	rel = filepath.ToSlash(rel)
	abs = filepath.ToSlash(abs)
	if s.fold {
		rel = strings.ToLower(rel)
		abs = strings.ToLower(abs)
	}
	return rel, abs
}

func anyMatch(patterns []pattern, rel, abs string) bool {
	for _, p := range patterns {
		if p.match(rel, abs) {
			return true
		}
	}
	return false
}
