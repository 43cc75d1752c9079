//go:build unix

package watch

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

// isExhausted reports whether err means the kernel ran out of watch
// resources: the inotify watch limit (ENOSPC), descriptor limits, or a
// queue overflow that dropped events.
func isExhausted(err error) bool {
	return errors.Is(err, fsnotify.ErrEventOverflow) ||
		errors.Is(err, unix.ENOSPC) ||
		errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE)
}
