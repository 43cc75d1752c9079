package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExitStatus describes how a child ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the child was ended by a signal
	Code int

	// Signal names the signal that ended the child, if any
	Signal string

	// Forced is set when the child had to be force-killed
	Forced bool

	// Err is set when waiting for the child failed
	Err error

	// Duration is how long the child ran
	Duration time.Duration
}

// Success reports whether the child exited cleanly with code 0.
func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Code == 0 && s.Signal == ""
}

func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("error: %v", s.Err)
	case s.Forced:
		return "killed after grace period"
	case s.Signal != "":
		return "terminated by " + s.Signal
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}

// Process is one running child.
//
// Signal and Kill address the child's whole process group. Wait is called
// exactly once, from the Supervisor's wait goroutine.
type Process interface {
	Pid() int
	Signal(sig syscall.Signal) error
	Kill() error
	Wait() ExitStatus
}

// groupProcess is implemented by Processes whose group can outlive the
// leader. GroupAlive reports whether any member is still running.
type groupProcess interface {
	GroupAlive() bool
}

// Launcher starts Processes. The Supervisor uses ExecLauncher unless a test
// supplies its own.
type Launcher interface {
	Launch(spec CommandSpec, env []string) (Process, error)
}

// ExecLauncher starts children with os/exec in a new process group.
type ExecLauncher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecLauncher returns a launcher passing stdout and stderr straight
// through to the terminal.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Launch starts spec with the given environment.
func (l *ExecLauncher) Launch(spec CommandSpec, env []string) (Process, error) {
	args, err := spec.Args()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = env
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, started: time.Now()}, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	started time.Time
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig syscall.Signal) error {
	return terminateGroup(p.cmd.Process.Pid, sig)
}

func (p *execProcess) Kill() error {
	return killGroup(p.cmd.Process.Pid)
}

func (p *execProcess) GroupAlive() bool {
	return groupAlive(p.cmd.Process.Pid)
}

func (p *execProcess) Wait() ExitStatus {
	err := p.cmd.Wait()
	status := ExitStatus{Duration: time.Since(p.started)}

	if state := p.cmd.ProcessState; state != nil {
		status.Code = state.ExitCode()
		status.Signal = exitSignal(state)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	return status
}
