package watch

import (
	"log"
	"os"
	"time"
)

// DefaultPollInterval is how often the polling backend re-scans the roots.
const DefaultPollInterval = time.Second

// Mode identifies which backend is producing events.
type Mode int

const (
	// ModeNative uses the operating system's notification facility.
	ModeNative Mode = iota
	// ModePoll re-scans the roots on a fixed interval.
	ModePoll
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNative:
		return "native"
	case ModePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Backend produces ChangeEvents for a set of root paths.
//
// Start should only be called once. Stop closes the Events and Errors
// channels after the backend's goroutine has exited.
type Backend interface {
	Start(roots []string) error
	Stop() error
	Events() <-chan ChangeEvent
	Errors() <-chan error
}

// Config holds configuration for a Watcher and its backends.
type Config struct {
	// ForcePoll skips the native backend entirely.
	ForcePoll bool

	// PollInterval is the fixed re-scan interval of the polling backend.
	PollInterval time.Duration

	// Prune reports whether a directory should not be watched at all.
	// Nothing beneath a pruned directory produces events.
	Prune func(dir string) bool

	// OnDegrade is called once when the watcher falls back to polling.
	OnDegrade func(err error)

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: DefaultPollInterval,
		Logger:       log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

func (c *Config) pruned(dir string) bool {
	return c.Prune != nil && c.Prune(dir)
}
