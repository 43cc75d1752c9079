package watch

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Watcher is the adapter the run loop consumes. It starts the native backend
// and transparently substitutes the polling backend when native watching
// cannot be set up or runs out of kernel resources. Events and Errors stay
// open across the switch.
type Watcher struct {
	config *Config
	events chan ChangeEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	backend Backend
	mode    Mode
	roots   []string
	running bool
	stopped bool
}

// New creates a Watcher with the given configuration.
// A nil config uses DefaultConfig.
func New(config *Config) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	return &Watcher{
		config: config,
		events: make(chan ChangeEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// Start begins watching roots recursively. Roots are made absolute.
// Failing to set up native watching is not an error: the watcher logs it
// and polls instead. Start returns an error only if polling cannot start.
func (w *Watcher) Start(roots []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		p, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		abs = append(abs, p)
	}
	w.roots = abs

	backend, mode, err := w.startBackend()
	if err != nil {
		return err
	}
	w.backend = backend
	w.mode = mode

	w.running = true
	w.wg.Add(1)
	go w.forward(backend)

	w.config.Logger.Printf("Watching %d path(s) using %s backend", len(abs), mode)
	return nil
}

func (w *Watcher) startBackend() (Backend, Mode, error) {
	if !w.config.ForcePoll {
		native, err := newNativeBackend(w.config)
		if err == nil {
			err = native.Start(w.roots)
			if err == nil {
				return native, ModeNative, nil
			}
			_ = native.Stop()
		}
		w.degraded(err)
	}

	poller := newPollBackend(w.config)
	if err := poller.Start(w.roots); err != nil {
		return nil, ModePoll, fmt.Errorf("failed to start polling: %w", err)
	}
	return poller, ModePoll, nil
}

// Stop stops the active backend and closes Events and Errors.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped || !w.running {
		w.stopped = true
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	err := w.backend.Stop()
	w.mu.Unlock()

	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of change notifications.
// It is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
// It is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Mode reports which backend is currently active.
func (w *Watcher) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// forward copies events from the active backend to the Watcher's channels
// and swaps in the poller when the native backend reports exhaustion.
func (w *Watcher) forward(backend Backend) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-backend.Events():
			if !ok {
				return
			}
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case err, ok := <-backend.Errors():
			if !ok {
				return
			}
			if isExhausted(err) && w.Mode() == ModeNative {
				next, swapErr := w.fallBack(backend, err)
				if swapErr != nil {
					w.send(swapErr)
					return
				}
				backend = next
				continue
			}
			w.send(err)
		}
	}
}

// fallBack stops the exhausted native backend and starts polling in its place.
func (w *Watcher) fallBack(native Backend, cause error) (Backend, error) {
	w.degraded(cause)
	_ = native.Stop()

	poller := newPollBackend(w.config)
	if err := poller.Start(w.roots); err != nil {
		return nil, fmt.Errorf("failed to start polling: %w", err)
	}

	w.mu.Lock()
	w.backend = poller
	w.mode = ModePoll
	w.mu.Unlock()

	return poller, nil
}

func (w *Watcher) degraded(cause error) {
	w.config.Logger.Printf("Native watching unavailable, falling back to polling every %s: %v",
		w.pollInterval(), cause)
	if w.config.OnDegrade != nil {
		w.config.OnDegrade(cause)
	}
}

func (w *Watcher) pollInterval() string {
	if w.config.PollInterval > 0 {
		return w.config.PollInterval.String()
	}
	return DefaultPollInterval.String()
}

func (w *Watcher) send(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}
