package supervisor

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/watchrun/internal/debounce"
)

// tracker records how many fake children are alive at once.
type tracker struct {
	mu      sync.Mutex
	live    int
	maxLive int
	spawns  int
	exits   int
}

func (t *tracker) spawned() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live++
	t.spawns++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
}

func (t *tracker) exited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live--
	t.exits++
}

type fakeProcess struct {
	pid          int
	tracker      *tracker
	ignoreSignal bool
	killErr      error
	code         int

	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	signals  []syscall.Signal
	killed   bool
	survivor bool // another group member that only dies on Kill
}

func (p *fakeProcess) exit(code int) {
	p.stopOnce.Do(func() {
		p.code = code
		close(p.stop)
	})
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if !p.ignoreSignal {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	if p.killErr != nil {
		return p.killErr
	}
	p.mu.Lock()
	p.survivor = false
	p.mu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProcess) GroupAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.survivor
}

func (p *fakeProcess) Wait() ExitStatus {
	<-p.stop
	// Simulate the kernel taking a moment to tear the process down
	time.Sleep(time.Millisecond)
	p.tracker.exited()
	return ExitStatus{Code: p.code}
}

type fakeLauncher struct {
	mu           sync.Mutex
	tracker      tracker
	procs        []*fakeProcess
	envs         [][]string
	err          error
	ignoreSignal bool
	survivor     bool
	killErr      error
}

func (l *fakeLauncher) Launch(spec CommandSpec, env []string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.tracker.spawned()
	p := &fakeProcess{
		pid:          1000 + len(l.procs),
		tracker:      &l.tracker,
		ignoreSignal: l.ignoreSignal,
		killErr:      l.killErr,
		survivor:     l.survivor,
		stop:         make(chan struct{}),
	}
	l.procs = append(l.procs, p)
	l.envs = append(l.envs, env)
	return p, nil
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[len(l.procs)-1]
}

func newTestSupervisor(l Launcher) *Supervisor {
	return New(&Config{
		Launcher: l,
		BaseEnv:  []string{"PATH=/bin"},
		Logger:   log.New(io.Discard, "", 0),
	})
}

var testSpec = CommandSpec{Argv: []string{"make", "test"}, GracePeriod: 50 * time.Millisecond}

func TestSupervisor_StartAndNaturalExit(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)

	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Done())

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 1000, s.Pid())

	err := s.Start(testSpec, debounce.Batch{})
	assert.ErrorIs(t, err, ErrBusy)

	l.last().exit(3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Code)
	assert.False(t, status.Success())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, s.Pid())
}

func TestSupervisor_SpawnFailureLeavesIdle(t *testing.T) {
	l := &fakeLauncher{err: errors.New("exec: not found")}
	s := newTestSupervisor(l)

	err := s.Start(testSpec, debounce.Batch{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawn))
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Done())

	_, err = s.Restart(context.Background(), testSpec, debounce.Batch{})
	assert.ErrorIs(t, err, ErrSpawn)
	assert.Equal(t, StateIdle, s.State())
}

func TestSupervisor_TerminateIsNonBlocking(t *testing.T) {
	l := &fakeLauncher{ignoreSignal: true}
	s := newTestSupervisor(l)
	spec := testSpec
	spec.GracePeriod = time.Hour

	require.NoError(t, s.Start(spec, debounce.Batch{}))

	returned := make(chan struct{})
	go func() {
		s.Terminate()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Terminate blocked")
	}
	assert.Equal(t, StateTerminating, s.State())

	// A second Terminate does not signal again
	s.Terminate()
	p := l.last()
	p.mu.Lock()
	assert.Len(t, p.signals, 1)
	assert.Equal(t, DefaultSignal, p.signals[0])
	p.mu.Unlock()

	p.exit(0)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for exit")
	}
	_, err := s.Reap()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestSupervisor_ForceKillAfterGrace(t *testing.T) {
	l := &fakeLauncher{ignoreSignal: true}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))

	start := time.Now()
	status, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Forced)
	assert.GreaterOrEqual(t, time.Since(start), testSpec.GracePeriod)

	p := l.last()
	p.mu.Lock()
	assert.True(t, p.killed)
	p.mu.Unlock()
}

// TestSupervisor_KillsGroupOutlivingLeader verifies exit is not confirmed
// while a group member that ignores the signal is left behind the leader.
func TestSupervisor_KillsGroupOutlivingLeader(t *testing.T) {
	l := &fakeLauncher{survivor: true}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))
	p := l.last()

	start := time.Now()
	status, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Forced)
	assert.GreaterOrEqual(t, time.Since(start), testSpec.GracePeriod)
	assert.False(t, p.GroupAlive())

	p.mu.Lock()
	assert.True(t, p.killed)
	p.mu.Unlock()
}

// TestSupervisor_NaturalExitLeavesGroupAlone verifies a command exiting on
// its own is confirmed at once, whatever it left running.
func TestSupervisor_NaturalExitLeavesGroupAlone(t *testing.T) {
	l := &fakeLauncher{survivor: true}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))
	p := l.last()
	p.exit(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, status.Forced)

	p.mu.Lock()
	assert.False(t, p.killed)
	p.mu.Unlock()
}

func TestSupervisor_ReplaceStartsNextChild(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))
	first := l.last()

	_, err := s.Replace(testSpec, debounce.Batch{})
	assert.ErrorIs(t, err, ErrStillRunning)
	assert.Same(t, first, l.last())

	s.Terminate()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for exit")
	}

	status, err := s.Replace(testSpec, debounce.Batch{})
	require.NoError(t, err)
	assert.Equal(t, -1, status.Code)
	assert.Equal(t, StateRunning, s.State())
	assert.NotSame(t, first, l.last())

	l.mu.Lock()
	l.err = errors.New("exec: not found")
	l.mu.Unlock()
	l.last().exit(0)
	<-s.Done()

	status, err = s.Replace(testSpec, debounce.Batch{})
	assert.ErrorIs(t, err, ErrSpawn)
	assert.Equal(t, 0, status.Code)
	assert.Equal(t, StateIdle, s.State())
}

func TestSupervisor_KillFailureIsReported(t *testing.T) {
	l := &fakeLauncher{ignoreSignal: true, killErr: errors.New("operation not permitted")}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Interrupt(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKillFailed)
	assert.Equal(t, StateIdle, s.State())

	l.last().exit(0)
}

func TestSupervisor_InterruptWhenIdle(t *testing.T) {
	s := newTestSupervisor(&fakeLauncher{})
	status, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitStatus{}, status)
}

func TestSupervisor_WaitRespectsContext(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)
	require.NoError(t, s.Start(testSpec, debounce.Batch{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, s.State())

	l.last().exit(0)
	_, err = s.Wait(context.Background())
	require.NoError(t, err)
}

func TestSupervisor_RestartReplacesChild(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)

	require.NoError(t, s.Start(testSpec, debounce.Batch{}))
	first := l.last()

	_, err := s.Restart(context.Background(), testSpec, debounce.Batch{})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())
	assert.NotSame(t, first, l.last())

	first.mu.Lock()
	assert.Len(t, first.signals, 1)
	first.mu.Unlock()

	_, err = s.Interrupt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, l.tracker.spawns)
	assert.Equal(t, 2, l.tracker.exits)
}

// TestSupervisor_AtMostOneLiveChild hammers the supervisor with concurrent
// restarts and terminations and verifies no two children ever overlap.
func TestSupervisor_AtMostOneLiveChild(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)
	ctx := context.Background()

	const workers = 8
	const rounds = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				_, err := s.Restart(ctx, testSpec, debounce.Batch{})
				assert.NoError(t, err)
			}
		}()
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				s.Terminate()
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	wg.Wait()
	close(stop)
	_, err := s.Interrupt(ctx)
	require.NoError(t, err)

	l.tracker.mu.Lock()
	defer l.tracker.mu.Unlock()
	assert.Equal(t, 1, l.tracker.maxLive)
	assert.Equal(t, workers*rounds, l.tracker.spawns)
	assert.Equal(t, l.tracker.spawns, l.tracker.exits)
}

func TestSupervisor_InjectsChangeEnvironment(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l)

	spec := testSpec
	spec.Env = map[string]string{"MODE": "dev"}
	batch := batchOf(t, "/proj/a.go", "/proj/b.go")

	require.NoError(t, s.Start(spec, batch))
	l.mu.Lock()
	env := l.envs[0]
	l.mu.Unlock()

	assert.Contains(t, env, "PATH=/bin")
	assert.Contains(t, env, "MODE=dev")
	assert.Contains(t, env, EnvCommonPath+"="+filepath.FromSlash("/proj"))

	_, err := s.Interrupt(context.Background())
	require.NoError(t, err)
}
