package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is one compiled glob.
//
// Relative patterns follow gitignore placement rules: a pattern containing a
// slash before its last character is anchored to the root, anything else
// matches at any depth. A pattern that matches a directory also matches every
// path beneath it.
type pattern struct {
	raw      string
	globs    []string
	absolute bool
}

func compilePattern(raw string, fold bool) (pattern, error) {
	p := pattern{raw: raw}

	s := strings.TrimSpace(raw)
	if s == "" {
		return p, fmt.Errorf("%w: empty pattern", ErrBadPattern)
	}
	if fold {
		s = strings.ToLower(s)
	}

	if filepath.IsAbs(s) {
		p.absolute = true
		s = filepath.ToSlash(s)
	} else {
		s = filepath.ToSlash(s)
		anchored := strings.HasPrefix(s, "/")
		s = strings.TrimPrefix(s, "/")
		s = strings.TrimSuffix(s, "/")
		if s == "" {
			return p, fmt.Errorf("%w: %q matches nothing", ErrBadPattern, raw)
		}
		if strings.Contains(s, "/") && !strings.HasPrefix(s, "**/") {
			anchored = true
		}
		if !anchored && !strings.HasPrefix(s, "**/") {
			s = "**/" + s
		}
	}

	p.globs = []string{s}
	if !strings.HasSuffix(s, "/**") {
		p.globs = append(p.globs, s+"/**")
	}

	for _, g := range p.globs {
		if !doublestar.ValidatePattern(g) {
			return p, fmt.Errorf("%w: %q", ErrBadPattern, raw)
		}
	}
	return p, nil
}

// match reports whether the pattern matches. rel is the slash-separated path
// relative to the root the pattern applies to; abs is the slash-separated
// absolute path.
func (p pattern) match(rel, abs string) bool {
	name := rel
	if p.absolute {
		name = abs
	}
	for _, g := range p.globs {
		if ok, err := doublestar.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}

func compilePatterns(raws []string, fold bool) ([]pattern, error) {
	out := make([]pattern, 0, len(raws))
	for _, raw := range raws {
		p, err := compilePattern(raw, fold)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
