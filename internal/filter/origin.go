package filter

import (
	"os"
	"path/filepath"
)

// OriginMarkers are the entries whose presence marks a project origin, in
// detection order. ".git" may be a directory or, in worktrees, a file.
var OriginMarkers = []string{".jj", ".git", ".hg", ".svn", "_darcs", ".bzr"}

// Origin describes the project a watched path belongs to.
type Origin struct {
	// Root is the directory containing the marker
	Root string

	// Marker is the marker entry that was found (e.g. ".git")
	Marker string

	// Worktree indicates .git is a file pointing at another repository
	Worktree bool
}

// DetectOrigin walks up from path until a directory containing one of
// OriginMarkers is found.
//
// Detection precedence within one directory follows OriginMarkers, so a
// colocated jj+git repository reports ".jj".
//
// Returns ErrNoOrigin if no marker exists up to the filesystem root.
func DetectOrigin(path string) (*Origin, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	current := absPath
	for {
		for _, marker := range OriginMarkers {
			info, err := os.Stat(filepath.Join(current, marker))
			if err != nil {
				continue
			}
			if info.IsDir() {
				return &Origin{Root: current, Marker: marker}, nil
			}
			if marker == ".git" && info.Mode().IsRegular() {
				return &Origin{Root: current, Marker: marker, Worktree: true}, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNoOrigin
		}
		current = parent
	}
}

// FindOrigin returns only the root directory of DetectOrigin.
func FindOrigin(path string) (string, error) {
	origin, err := DetectOrigin(path)
	if err != nil {
		return "", err
	}
	return origin.Root, nil
}
