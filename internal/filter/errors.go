package filter

import "errors"

var (
	// ErrBadPattern is returned when a glob pattern cannot be compiled.
	// Pattern errors are startup errors; a constructed Set never fails.
	ErrBadPattern = errors.New("invalid filter pattern")

	// ErrNoOrigin is returned by FindOrigin when no project marker
	// directory exists between the path and the filesystem root.
	ErrNoOrigin = errors.New("no project origin found")
)
