package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// nativeBackend watches directory trees with fsnotify.
//
// fsnotify watches are not recursive, so every directory under the roots is
// registered at Start and directories created later are registered when their
// Create event arrives.
type nativeBackend struct {
	watcher *fsnotify.Watcher
	events  chan ChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	config  *Config
	renames *renameTracker
}

// newNativeBackend creates a native backend. The error is returned unchanged
// so callers can detect resource exhaustion.
func newNativeBackend(config *Config) (*nativeBackend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &nativeBackend{
		watcher: watcher,
		events:  make(chan ChangeEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		config:  config,
		renames: newRenameTracker(),
	}, nil
}

// Start registers every directory beneath roots and begins emitting events.
func (nb *nativeBackend) Start(roots []string) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.running {
		return fmt.Errorf("watcher already running")
	}

	for _, root := range roots {
		if err := nb.addTree(root); err != nil {
			return err
		}
	}

	nb.running = true
	nb.wg.Add(1)
	go nb.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// It blocks until the event processing goroutine has exited.
func (nb *nativeBackend) Stop() error {
	nb.mu.Lock()
	if nb.stopped {
		nb.mu.Unlock()
		return nil
	}
	wasRunning := nb.running
	nb.running = false
	nb.stopped = true
	nb.mu.Unlock()

	close(nb.done)

	// Closing the fsnotify watcher unblocks the event loop
	err := nb.watcher.Close()

	nb.wg.Wait()

	close(nb.events)
	close(nb.errors)

	if err != nil && wasRunning {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (nb *nativeBackend) Events() <-chan ChangeEvent {
	return nb.events
}

func (nb *nativeBackend) Errors() <-chan error {
	return nb.errors
}

// addTree registers root and, if it is a directory, every non-pruned
// directory beneath it.
func (nb *nativeBackend) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if err := nb.watcher.Add(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable directories are skipped rather than failing the walk
			nb.config.Logger.Printf("Skipping %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && nb.config.pruned(path) {
			return filepath.SkipDir
		}
		if err := nb.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// processEvents is the main event loop that converts fsnotify events to
// ChangeEvents and merges rename pairs.
func (nb *nativeBackend) processEvents() {
	defer nb.wg.Done()

	hold := time.NewTimer(renameWindow)
	hold.Stop()
	defer hold.Stop()

	for {
		select {
		case <-nb.done:
			return

		case event, ok := <-nb.watcher.Events:
			if !ok {
				return
			}

			ev, ok := convertEvent(event)
			if !ok {
				continue
			}

			var info os.FileInfo
			if ev.Kind == KindCreate || ev.Kind == KindModify {
				info, _ = os.Stat(ev.Path)
			}
			if ev.Kind == KindCreate && info != nil && info.IsDir() {
				nb.addNewDir(ev.Path)
			}

			for _, out := range nb.renames.observe(ev, info) {
				if !nb.emit(out) {
					return
				}
			}
			if ev.Kind == KindRemove || ev.Kind == KindRename {
				hold.Reset(renameWindow)
			}

		case <-hold.C:
			for _, out := range nb.renames.expire() {
				if !nb.emit(out) {
					return
				}
			}

		case err, ok := <-nb.watcher.Errors:
			if !ok {
				return
			}

			select {
			case nb.errors <- err:
			case <-nb.done:
				return
			}
		}
	}
}

// addNewDir registers a directory created after Start, along with any
// subdirectories that were created before the watch took effect.
func (nb *nativeBackend) addNewDir(dir string) {
	if nb.config.pruned(dir) {
		return
	}
	if err := nb.addTree(dir); err != nil {
		if isExhausted(err) {
			select {
			case nb.errors <- err:
			case <-nb.done:
			}
			return
		}
		nb.config.Logger.Printf("Failed to watch new directory %s: %v", dir, err)
	}
}

func (nb *nativeBackend) emit(ev ChangeEvent) bool {
	select {
	case nb.events <- ev:
		return true
	case <-nb.done:
		return false
	}
}

// convertEvent converts an fsnotify event to a ChangeEvent.
// A rename is reported for the old name; the tracker pairs it with the
// create of the new name.
func convertEvent(event fsnotify.Event) (ChangeEvent, bool) {
	var kind Kind
	switch {
	case event.Has(fsnotify.Create):
		kind = KindCreate
	case event.Has(fsnotify.Write):
		kind = KindModify
	case event.Has(fsnotify.Remove):
		kind = KindRemove
	case event.Has(fsnotify.Rename):
		kind = KindRename
	case event.Has(fsnotify.Chmod):
		kind = KindMetadata
	default:
		return ChangeEvent{}, false
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		path = event.Name
	}

	return ChangeEvent{
		Path: path,
		Kind: kind,
		Time: time.Now(),
	}, true
}
