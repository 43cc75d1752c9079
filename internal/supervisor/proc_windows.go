//go:build windows

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// DefaultShell interprets commands unless ShellNone is requested.
const DefaultShell = "cmd"

// DefaultSignal is the graceful termination signal. It is delivered as
// CTRL_BREAK to the child's console process group.
const DefaultSignal = syscall.SIGTERM

var signalNames = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGKILL": syscall.SIGKILL,
	"SIGTERM": syscall.SIGTERM,
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// terminateGroup delivers CTRL_BREAK to the console process group led by pid.
// Windows has no signal other than that which reaches a whole group, so every
// graceful signal maps to it.
func terminateGroup(pid int, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return killGroup(pid)
	}
	err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
	if err == nil || errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
		return nil
	}
	return err
}

// killGroup terminates pid and all of its descendants.
func killGroup(pid int) error {
	out, err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err == nil {
		return nil
	}
	// 128: the process no longer exists
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
		return nil
	}
	return fmt.Errorf("taskkill: %w: %s", err, strings.TrimSpace(string(out)))
}

// groupAlive always reports false: once the leader is gone its descendants
// can no longer be found through it, and killGroup already took them.
func groupAlive(pid int) bool {
	return false
}

// ParseSignal accepts names such as "TERM", "SIGINT" or "sighup".
func ParseSignal(name string) (syscall.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig, ok := signalNames[n]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return sig, nil
}

// SignalName returns the conventional name of sig, e.g. "SIGTERM".
func SignalName(sig syscall.Signal) string {
	for name, s := range signalNames {
		if s == sig {
			return name
		}
	}
	return sig.String()
}

func exitSignal(state *os.ProcessState) string {
	return ""
}
