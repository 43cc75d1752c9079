//go:build !unix && !windows

package watch

import (
	"errors"

	"github.com/fsnotify/fsnotify"
)

func isExhausted(err error) bool {
	return errors.Is(err, fsnotify.ErrEventOverflow)
}
