// Package debounce coalesces bursts of change events into single triggers.
//
// A Debouncer is either idle or accumulating. The first event opens a batch
// and arms a quiet-period timer; each further event resets the timer, but the
// deadline never moves past the batch start plus the cap, so a continuous
// stream of writes still produces a trigger at least once per cap.
//
// The Debouncer is not safe for concurrent use. It is meant to be owned by a
// single select loop:
//
//	for {
//	    select {
//	    case ev := <-events:
//	        d.Add(ev)
//	    case <-d.C():
//	        run(d.Flush())
//	    }
//	}
//
// C returns nil while idle, so that case never fires without a batch.
package debounce

import (
	"time"

	"github.com/steveyegge/watchrun/internal/watch"
)

const (
	// DefaultQuiet is how long the stream must stay silent before a flush.
	DefaultQuiet = 500 * time.Millisecond

	// DefaultCap bounds how long a batch may accumulate.
	DefaultCap = 5 * time.Second
)

// State is the debouncer's state.
type State int

const (
	// StateIdle means no batch is open.
	StateIdle State = iota
	// StateAccumulating means a batch is open and the timer is armed.
	StateAccumulating
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Config holds configuration for a Debouncer.
type Config struct {
	// Quiet is the silence required before a batch is flushed
	Quiet time.Duration

	// Cap is the longest a batch may stay open. Zero disables the cap.
	Cap time.Duration

	// Now returns the current time; tests substitute a fake clock
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Quiet: DefaultQuiet,
		Cap:   DefaultCap,
		Now:   time.Now,
	}
}

// Debouncer accumulates paths into a Batch.
type Debouncer struct {
	config *Config

	state    State
	kinds    map[string]watch.Kind
	start    time.Time
	deadline time.Time
	timer    *time.Timer
}

// New creates a Debouncer. A nil config uses DefaultConfig.
func New(config *Config) *Debouncer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Quiet <= 0 {
		config.Quiet = DefaultQuiet
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Debouncer{config: config}
}

// Add records ev in the open batch, opening one if idle, and pushes the
// deadline out by the quiet period up to the cap. A rename records both the
// old and the new name.
func (d *Debouncer) Add(ev watch.ChangeEvent) {
	now := d.config.Now()

	if d.state == StateIdle {
		d.state = StateAccumulating
		d.kinds = make(map[string]watch.Kind)
		d.start = now
	}

	d.kinds[ev.Path] = ev.Kind
	if ev.Kind == watch.KindRename && ev.OldPath != "" {
		d.kinds[ev.OldPath] = ev.Kind
	}

	d.deadline = now.Add(d.config.Quiet)
	if d.config.Cap > 0 {
		if limit := d.start.Add(d.config.Cap); d.deadline.After(limit) {
			d.deadline = limit
		}
	}

	wait := d.deadline.Sub(now)
	if wait < 0 {
		wait = 0
	}
	if d.timer == nil {
		d.timer = time.NewTimer(wait)
	} else {
		d.timer.Reset(wait)
	}
}

// C returns the channel that fires when the open batch is due, or nil while
// idle.
func (d *Debouncer) C() <-chan time.Time {
	if d.state == StateIdle || d.timer == nil {
		return nil
	}
	return d.timer.C
}

// Flush closes the open batch and returns it, leaving the debouncer idle.
// Flushing while idle returns an empty Batch.
func (d *Debouncer) Flush() Batch {
	if d.state == StateIdle {
		return Batch{}
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	b := newBatch(d.kinds, d.start, d.config.Now())
	d.state = StateIdle
	d.kinds = nil
	d.start = time.Time{}
	d.deadline = time.Time{}
	return b
}

// Stop releases the timer and discards any open batch.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.state = StateIdle
	d.kinds = nil
}

// State returns the current state.
func (d *Debouncer) State() State {
	return d.state
}

// Pending returns the number of unique paths in the open batch.
func (d *Debouncer) Pending() int {
	return len(d.kinds)
}

// Deadline returns when the open batch is due, or the zero time while idle.
func (d *Debouncer) Deadline() time.Time {
	return d.deadline
}
