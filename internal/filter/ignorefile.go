package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileNames are the ignore files DiscoverIgnoreFiles looks for.
var IgnoreFileNames = []string{".gitignore", ".ignore"}

type ignoreRule struct {
	pattern   pattern
	whitelist bool
}

// IgnoreFile is a parsed gitignore-style file. Its rules apply to paths
// beneath the directory that contains it; the last matching rule wins and a
// rule starting with "!" re-includes what earlier rules excluded.
type IgnoreFile struct {
	root  string
	rules []ignoreRule
	fold  bool
}

// LoadIgnoreFile reads and parses the ignore file at path.
func LoadIgnoreFile(path string, fold bool) (*IgnoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan ignore file %s: %w", path, err)
	}

	f, err := ParseIgnore(lines, filepath.Dir(path), fold)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseIgnore builds an IgnoreFile from lines whose rules are relative to root.
// Blank lines and lines starting with "#" are skipped; "\#" and "\!" escape a
// literal leading character.
func ParseIgnore(lines []string, root string, fold bool) (*IgnoreFile, error) {
	f := &IgnoreFile{root: filepath.Clean(root), fold: fold}

	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		whitelist := false
		if strings.HasPrefix(line, "!") {
			whitelist = true
			line = line[1:]
		}
		if strings.HasPrefix(line, `\#`) || strings.HasPrefix(line, `\!`) {
			line = line[1:]
		}

		p, err := compilePattern(line, fold)
		if err != nil {
			return nil, err
		}
		f.rules = append(f.rules, ignoreRule{pattern: p, whitelist: whitelist})
	}

	return f, nil
}

// Root returns the directory the rules are relative to.
func (f *IgnoreFile) Root() string {
	return f.root
}

// Len returns the number of rules.
func (f *IgnoreFile) Len() int {
	return len(f.rules)
}

// HasWhitelist reports whether any rule re-includes paths.
func (f *IgnoreFile) HasWhitelist() bool {
	for _, r := range f.rules {
		if r.whitelist {
			return true
		}
	}
	return false
}

// Excludes reports whether path is ignored. Paths outside the root are never
// ignored.
func (f *IgnoreFile) Excludes(path string) bool {
	rel, err := filepath.Rel(f.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	rel = filepath.ToSlash(rel)
	abs := filepath.ToSlash(path)
	if f.fold {
		rel = strings.ToLower(rel)
		abs = strings.ToLower(abs)
	}

	for i := len(f.rules) - 1; i >= 0; i-- {
		if f.rules[i].pattern.match(rel, abs) {
			return !f.rules[i].whitelist
		}
	}
	return false
}

// DiscoverIgnoreFiles returns the ignore files that apply to root: those in
// root itself and in each parent directory up to and including the project
// origin. Without an origin, parents are searched up to the filesystem root.
func DiscoverIgnoreFiles(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	origin, err := FindOrigin(abs)
	if err != nil {
		origin = ""
	}

	var found []string
	dir := abs
	for {
		for _, name := range IgnoreFileNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				found = append(found, candidate)
			}
		}

		if dir == origin {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return found, nil
}
