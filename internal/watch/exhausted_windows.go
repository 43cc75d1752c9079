//go:build windows

package watch

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/windows"
)

func isExhausted(err error) bool {
	return errors.Is(err, fsnotify.ErrEventOverflow) ||
		errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY) ||
		errors.Is(err, windows.ERROR_TOO_MANY_OPEN_FILES)
}
