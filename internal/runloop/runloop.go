// Package runloop drives the watch -> filter -> debounce -> supervise cycle.
//
// A single goroutine, the one calling Run, owns the Debouncer and applies the
// restart policy. It selects on the change events, the debounce timer, the
// child's exit and the context at once, so cancellation is noticed
// immediately and wins over any pending restart.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/watch"
)

// Policy decides what a trigger does while the command is still running.
type Policy string

const (
	// PolicyRestart terminates the running command and starts it again.
	PolicyRestart Policy = "restart"
	// PolicyQueue lets the command finish, then runs it once more for the
	// most recent trigger.
	PolicyQueue Policy = "queue"
	// PolicyIgnore drops triggers that arrive while the command runs.
	PolicyIgnore Policy = "ignore"
)

// Policies lists the valid policies.
var Policies = []Policy{PolicyRestart, PolicyQueue, PolicyIgnore}

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want restart, queue or ignore)", ErrBadPolicy, s)
}

// ErrBadPolicy is returned by ParsePolicy.
var ErrBadPolicy = errors.New("unknown restart policy")

// Source produces change events. *watch.Watcher satisfies it.
type Source interface {
	Events() <-chan watch.ChangeEvent
	Errors() <-chan error
}

// Matcher decides whether a path is relevant. *filter.Set satisfies it.
type Matcher interface {
	Matches(path string) bool
}

// Config holds configuration for a Loop.
type Config struct {
	// Command is run on every trigger
	Command supervisor.CommandSpec

	// Policy applies to triggers that arrive while the command runs
	Policy Policy

	// InitialRun starts the command once before any change
	InitialRun bool

	// ExitOnComplete returns after the first command finishes on its own
	ExitOnComplete bool

	// PropagateExit makes Run return the last command's exit code
	PropagateExit bool

	// Debounce configures batching of change events
	Debounce *debounce.Config

	// Logger for loop activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy:   PolicyRestart,
		Debounce: debounce.DefaultConfig(),
		Logger:   log.New(os.Stderr, "[runloop] ", log.LstdFlags),
	}
}

// Loop is the driver. Create it with New and call Run once.
type Loop struct {
	config    *Config
	source    Source
	matcher   Matcher
	sup       *supervisor.Supervisor
	reporter  reporters
	debouncer *debounce.Debouncer
	degraded  chan error

	pending    debounce.Batch
	hasPending bool
	lastCode   int
}

// New creates a Loop. A nil matcher accepts every path.
func New(config *Config, source Source, matcher Matcher, sup *supervisor.Supervisor, rs ...Reporter) *Loop {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Policy == "" {
		config.Policy = PolicyRestart
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[runloop] ", log.LstdFlags)
	}
	return &Loop{
		config:    config,
		source:    source,
		matcher:   matcher,
		sup:       sup,
		reporter:  reporters(rs),
		debouncer: debounce.New(config.Debounce),
		degraded:  make(chan error, 1),
	}
}

// Degraded hands a watcher degradation to the loop goroutine for reporting.
// It is safe to call from any goroutine and never blocks.
func (l *Loop) Degraded(err error) {
	select {
	case l.degraded <- err:
	default:
	}
}

// Run drives the loop until ctx is cancelled, or until the first command
// completes when ExitOnComplete is set. The returned code is 0 unless
// PropagateExit is set, in which case it is the last command's exit code.
// The only errors are fatal ones, such as a child that could not be killed.
func (l *Loop) Run(ctx context.Context) (int, error) {
	defer l.debouncer.Stop()

	if l.config.InitialRun {
		if code, done := l.start(debounce.Batch{}); done {
			return code, nil
		}
	}

	events := l.source.Events()
	errs := l.source.Errors()

	for {
		if ctx.Err() != nil {
			return l.shutdown()
		}

		select {
		case <-ctx.Done():
			return l.shutdown()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev, ok := l.relevant(ev); ok {
				l.debouncer.Add(ev)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.config.Logger.Printf("Watcher error: %v", err)

		case err := <-l.degraded:
			l.reporter.Degraded(err)

		case <-l.debouncer.C():
			batch := l.debouncer.Flush()
			l.reporter.Triggered(batch)
			if code, done := l.trigger(batch); done {
				return code, nil
			}

		case <-l.sup.Done():
			if l.hasPending {
				code, done, err := l.replace()
				if err != nil || done {
					return code, err
				}
				continue
			}

			status, err := l.sup.Reap()
			if err != nil {
				return 1, err
			}
			l.reporter.Exited(status)
			l.record(status)

			if l.config.ExitOnComplete {
				return l.exitCode(), nil
			}
		}
	}
}

// relevant reduces ev to the names the matcher accepts. A rename with only
// one accepted side becomes a removal of the old name or a creation of the
// new one, so a rejected name never reaches the batch.
func (l *Loop) relevant(ev watch.ChangeEvent) (watch.ChangeEvent, bool) {
	if l.matcher == nil {
		return ev, true
	}
	if ev.Kind != watch.KindRename || ev.OldPath == "" {
		return ev, l.matcher.Matches(ev.Path)
	}

	newOK, oldOK := l.matcher.Matches(ev.Path), l.matcher.Matches(ev.OldPath)
	switch {
	case newOK && oldOK:
		return ev, true
	case newOK:
		return watch.ChangeEvent{Path: ev.Path, Kind: watch.KindCreate, Time: ev.Time}, true
	case oldOK:
		return watch.ChangeEvent{Path: ev.OldPath, Kind: watch.KindRemove, Time: ev.Time}, true
	default:
		return ev, false
	}
}

// trigger applies the policy to a flushed batch.
func (l *Loop) trigger(batch debounce.Batch) (int, bool) {
	switch state := l.sup.State(); state {
	case supervisor.StateIdle:
		return l.start(batch)

	case supervisor.StateRunning:
		switch l.config.Policy {
		case PolicyQueue:
			l.pending, l.hasPending = batch, true
			l.config.Logger.Printf("Queued %d change(s) until the command finishes", batch.Len())
		case PolicyIgnore:
			l.config.Logger.Printf("Ignored %d change(s) while the command runs", batch.Len())
		default:
			l.pending, l.hasPending = batch, true
			l.sup.Terminate()
		}

	case supervisor.StateTerminating:
		if l.config.Policy == PolicyQueue {
			l.pending, l.hasPending = batch, true
		} else {
			l.pending, l.hasPending = l.pending.Merge(batch), true
		}

	default:
		l.config.Logger.Printf("Dropped trigger in state %s", state)
	}
	return 0, false
}

// start spawns the command. A spawn failure is reported and the loop keeps
// watching, unless it was only meant to run once.
func (l *Loop) start(batch debounce.Batch) (int, bool) {
	return l.launched(l.sup.Start(l.config.Command, batch))
}

// replace reaps the finished command and starts it again for the pending
// batch. Only a kill failure is returned as an error.
func (l *Loop) replace() (int, bool, error) {
	batch := l.pending
	l.pending, l.hasPending = debounce.Batch{}, false

	status, err := l.sup.Replace(l.config.Command, batch)
	if errors.Is(err, supervisor.ErrKillFailed) {
		return 1, true, err
	}
	l.reporter.Exited(status)
	l.record(status)

	code, done := l.launched(err)
	return code, done, nil
}

func (l *Loop) launched(err error) (int, bool) {
	if err != nil {
		l.reporter.SpawnFailed(err)
		l.lastCode = 1
		if l.config.ExitOnComplete {
			return 1, true
		}
		return 0, false
	}
	l.reporter.Started(l.config.Command, l.sup.Pid())
	return 0, false
}

func (l *Loop) record(status supervisor.ExitStatus) {
	switch {
	case status.Err != nil || status.Code < 0:
		l.lastCode = 1
	default:
		l.lastCode = status.Code
	}
}

func (l *Loop) exitCode() int {
	if l.config.PropagateExit {
		return l.lastCode
	}
	return 0
}

// shutdown stops the child and waits for it. Force-kill bounds the wait, so
// no deadline is applied. The interrupted run does not count as the last
// exit code.
func (l *Loop) shutdown() (int, error) {
	l.config.Logger.Println("Shutdown signal received")

	if l.sup.State() == supervisor.StateIdle {
		return l.exitCode(), nil
	}

	start := time.Now()
	status, err := l.sup.Interrupt(context.Background())
	if err != nil {
		return 1, err
	}
	l.config.Logger.Printf("Command stopped in %s", time.Since(start).Round(time.Millisecond))
	l.reporter.Exited(status)
	return l.exitCode(), nil
}
