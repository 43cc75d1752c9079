package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/watchrun/internal/debounce"
)

// State is the Supervisor's lifecycle state.
type State int

const (
	// StateIdle means no child exists.
	StateIdle State = iota
	// StateRunning means a child is live and has not been asked to stop.
	StateRunning
	// StateTerminating means the graceful signal was sent and the grace
	// timer is armed.
	StateTerminating
	// StateRestarting means the previous child was reaped and the next one
	// is about to be spawned.
	StateRestarting
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Config holds configuration for a Supervisor.
type Config struct {
	// Launcher starts children; nil uses NewExecLauncher()
	Launcher Launcher

	// BaseEnv is the environment children inherit; nil uses os.Environ()
	BaseEnv []string

	// Logger for supervisor activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Launcher: NewExecLauncher(),
		Logger:   log.New(os.Stderr, "[supervisor] ", log.LstdFlags),
	}
}

// child is the handle on the one live process.
type child struct {
	proc    Process
	spec    CommandSpec
	started time.Time

	killed chan struct{} // closed once the group has been force-killed
	done   chan struct{} // closed on exit or on a failed force-kill
	once   sync.Once

	status  ExitStatus
	forced  bool
	killErr error
	grace   *time.Timer
}

func (c *child) finish() {
	c.once.Do(func() { close(c.done) })
}

// Supervisor owns the lifecycle of at most one child process.
//
// Start, Replace, Restart, Interrupt and Wait are serialized against each other.
// Terminate, Done and State never block on the child and may be called at
// any time.
type Supervisor struct {
	config *Config

	lifecycle sync.Mutex

	mu    sync.Mutex
	state State
	child *child
}

// New creates a Supervisor. A nil config uses DefaultConfig.
func New(config *Config) *Supervisor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Launcher == nil {
		config.Launcher = NewExecLauncher()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[supervisor] ", log.LstdFlags)
	}
	return &Supervisor{config: config}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the live child's pid, or 0.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return 0
	}
	return s.child.proc.Pid()
}

// Start spawns spec for batch. It fails with ErrBusy unless Idle; a spawn
// failure wraps ErrSpawn and leaves the Supervisor Idle.
func (s *Supervisor) Start(spec CommandSpec, batch debounce.Batch) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.start(spec, batch, StateIdle)
}

func (s *Supervisor) start(spec CommandSpec, batch debounce.Batch, from State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return fmt.Errorf("%w (state %s)", ErrBusy, s.state)
	}

	base := s.config.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := BuildEnv(base, spec.Env, batch)

	proc, err := s.config.Launcher.Launch(spec, env)
	if err != nil {
		s.state = StateIdle
		s.config.Logger.Printf("Spawn failed: %s: %v", spec, err)
		return fmt.Errorf("%w: %s: %w", ErrSpawn, spec, err)
	}

	c := &child{
		proc:    proc,
		spec:    spec,
		started: time.Now(),
		killed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.child = c
	s.state = StateRunning
	s.config.Logger.Printf("Started pid %d: %s", proc.Pid(), spec)

	go s.wait(c)
	return nil
}

// wait runs on its own goroutine for every child.
func (s *Supervisor) wait(c *child) {
	status := c.proc.Wait()

	s.mu.Lock()
	terminating := c.grace != nil
	s.mu.Unlock()

	// The leader can exit on the signal while others in its group ignore it.
	if terminating {
		s.awaitGroup(c)
	}

	s.mu.Lock()
	c.status = status
	c.status.Forced = c.forced
	if c.grace != nil {
		c.grace.Stop()
	}
	s.mu.Unlock()

	c.finish()
}

// groupPollInterval is how often a stopping group is checked for survivors.
const groupPollInterval = 20 * time.Millisecond

// killSettle bounds the wait for a force-killed group to disappear.
const killSettle = 2 * time.Second

// awaitGroup blocks until no process is left in the child's group, the
// force-kill failed, or the group was killed and killSettle has passed.
func (s *Supervisor) awaitGroup(c *child) {
	g, ok := c.proc.(groupProcess)
	if !ok {
		return
	}

	tick := time.NewTicker(groupPollInterval)
	defer tick.Stop()

	killed := (<-chan struct{})(c.killed)
	var settle <-chan time.Time
	for g.GroupAlive() {
		select {
		case <-c.done:
			return
		case <-killed:
			killed = nil
			settle = time.After(killSettle)
		case <-settle:
			s.config.Logger.Printf("Processes in group %d outlived SIGKILL", c.proc.Pid())
			return
		case <-tick.C:
		}
	}
}

// Terminate sends the graceful signal to the child's process group and arms
// the grace timer; when it expires the group is force-killed. It returns
// immediately. Calling it while Terminating or Idle does nothing.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	c := s.child
	s.state = StateTerminating

	sig := c.spec.Signal
	if sig == 0 {
		sig = DefaultSignal
	}
	grace := c.spec.GracePeriod
	if grace < 0 {
		grace = 0
	}

	s.config.Logger.Printf("Sending %s to pid %d", SignalName(sig), c.proc.Pid())
	if err := c.proc.Signal(sig); err != nil {
		s.config.Logger.Printf("Signal failed, killing pid %d: %v", c.proc.Pid(), err)
		grace = 0
	}
	c.grace = time.AfterFunc(grace, func() { s.forceKill(c) })
}

func (s *Supervisor) forceKill(c *child) {
	select {
	case <-c.done:
		return
	default:
	}

	s.mu.Lock()
	c.forced = true
	s.mu.Unlock()

	s.config.Logger.Printf("Grace period expired, killing pid %d", c.proc.Pid())
	if err := c.proc.Kill(); err != nil {
		s.mu.Lock()
		c.killErr = fmt.Errorf("%w: pid %d: %w", ErrKillFailed, c.proc.Pid(), err)
		s.mu.Unlock()
		c.finish()
		return
	}
	close(c.killed)
}

// Done returns a channel closed once the live child's exit is confirmed, or
// nil while Idle.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return nil
	}
	return s.child.done
}

// Reap releases a child whose Done channel is closed and returns its exit
// status. The Supervisor becomes Idle. If the child could not be killed the
// error wraps ErrKillFailed.
func (s *Supervisor) Reap() (ExitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reapLocked()
}

func (s *Supervisor) reapLocked() (ExitStatus, error) {
	c := s.child
	if c == nil {
		return ExitStatus{}, ErrNotRunning
	}
	select {
	case <-c.done:
	default:
		return ExitStatus{}, ErrStillRunning
	}

	if c.killErr != nil {
		s.state = StateIdle
		s.child = nil
		return ExitStatus{Code: -1, Forced: true, Duration: time.Since(c.started)}, c.killErr
	}

	s.child = nil
	s.state = StateIdle
	s.config.Logger.Printf("pid %d finished: %s", c.proc.Pid(), c.status)
	return c.status, nil
}

// Wait blocks until the child exits on its own, then reaps it. It returns
// ctx's error if ctx ends first; the child is left running.
func (s *Supervisor) Wait(ctx context.Context) (ExitStatus, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.waitDone(ctx)
}

func (s *Supervisor) waitDone(ctx context.Context) (ExitStatus, error) {
	done := s.Done()
	if done == nil {
		return ExitStatus{}, ErrNotRunning
	}

	select {
	case <-done:
		return s.Reap()
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}

// Interrupt terminates the child and waits for its exit to be confirmed.
// Interrupting an Idle Supervisor returns a zero status and no error.
func (s *Supervisor) Interrupt(ctx context.Context) (ExitStatus, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.interrupt(ctx)
}

func (s *Supervisor) interrupt(ctx context.Context) (ExitStatus, error) {
	if s.State() == StateIdle {
		return ExitStatus{}, nil
	}
	s.Terminate()
	return s.waitDone(ctx)
}

// Replace reaps a child whose Done channel is closed and starts spec for
// batch in its place, passing through Restarting. The returned status
// belongs to the reaped child. A kill failure wraps ErrKillFailed and starts
// nothing; a spawn failure wraps ErrSpawn and leaves the Supervisor Idle.
func (s *Supervisor) Replace(spec CommandSpec, batch debounce.Batch) (ExitStatus, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.replace(spec, batch)
}

func (s *Supervisor) replace(spec CommandSpec, batch debounce.Batch) (ExitStatus, error) {
	s.mu.Lock()
	status, err := s.reapLocked()
	if err != nil && !errors.Is(err, ErrNotRunning) {
		s.mu.Unlock()
		return status, err
	}
	s.state = StateRestarting
	s.mu.Unlock()

	return status, s.start(spec, batch, StateRestarting)
}

// Restart stops any live child, waits for it, and starts spec for batch.
// The returned status belongs to the stopped child. It blocks for the whole
// grace period if need be; callers that must stay responsive call Terminate
// and then Replace once Done closes.
func (s *Supervisor) Restart(ctx context.Context, spec CommandSpec, batch debounce.Batch) (ExitStatus, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != StateIdle {
		s.Terminate()
		done := s.Done()
		select {
		case <-done:
		case <-ctx.Done():
			return ExitStatus{}, ctx.Err()
		}
	}
	return s.replace(spec, batch)
}
