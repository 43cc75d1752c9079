package debounce

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/watchrun/internal/watch"
)

// Batch is one trigger: the unique paths that changed since the previous
// trigger with the most recent kind seen for each.
type Batch struct {
	// Paths are sorted and unique
	Paths []string

	// Kinds maps each path to its most recent change kind
	Kinds map[string]watch.Kind

	// Start is when the first event of the batch arrived
	Start time.Time

	// End is when the batch was flushed
	End time.Time
}

func newBatch(kinds map[string]watch.Kind, start, end time.Time) Batch {
	paths := make([]string, 0, len(kinds))
	for p := range kinds {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return Batch{Paths: paths, Kinds: kinds, Start: start, End: end}
}

// Empty reports whether the batch holds no paths.
func (b Batch) Empty() bool {
	return len(b.Paths) == 0
}

// Len returns the number of paths.
func (b Batch) Len() int {
	return len(b.Paths)
}

// PathsOf returns the sorted paths whose most recent change was kind.
func (b Batch) PathsOf(kind watch.Kind) []string {
	var out []string
	for _, p := range b.Paths {
		if b.Kinds[p] == kind {
			out = append(out, p)
		}
	}
	return out
}

// CommonPath returns the longest directory that contains every path, or ""
// for an empty batch.
func (b Batch) CommonPath() string {
	if len(b.Paths) == 0 {
		return ""
	}

	common := filepath.Dir(b.Paths[0])
	if len(b.Paths) == 1 {
		return common
	}
	for _, p := range b.Paths[1:] {
		for !within(common, p) {
			parent := filepath.Dir(common)
			if parent == common {
				return common
			}
			common = parent
		}
	}
	return common
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Merge returns a batch holding the paths of both, with other's kinds
// winning where they overlap.
func (b Batch) Merge(other Batch) Batch {
	if b.Empty() {
		return other
	}
	if other.Empty() {
		return b
	}

	kinds := make(map[string]watch.Kind, len(b.Kinds)+len(other.Kinds))
	for p, k := range b.Kinds {
		kinds[p] = k
	}
	for p, k := range other.Kinds {
		kinds[p] = k
	}

	start := b.Start
	if other.Start.Before(start) {
		start = other.Start
	}
	end := b.End
	if other.End.After(end) {
		end = other.End
	}
	return newBatch(kinds, start, end)
}
