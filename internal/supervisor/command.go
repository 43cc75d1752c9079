package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
)

// DefaultGracePeriod is how long a child may take to exit after the
// graceful signal before it is force-killed.
const DefaultGracePeriod = 10 * time.Second

// ShellNone runs Argv directly instead of through a shell.
const ShellNone = "none"

// CommandSpec describes the command to run on every trigger.
type CommandSpec struct {
	// Argv is the command line. With a shell the words are joined into one
	// command string; without one a single word is split shell-style.
	Argv []string

	// Shell is the program used to interpret the command, or ShellNone
	Shell string

	// Dir is the working directory; empty means the current one
	Dir string

	// Env is added to the inherited environment
	Env map[string]string

	// Signal is sent to the process group to ask it to stop
	Signal syscall.Signal

	// GracePeriod is how long to wait after Signal before force-killing
	GracePeriod time.Duration
}

// Args returns the program and arguments that will actually be executed.
func (s CommandSpec) Args() ([]string, error) {
	if len(s.Argv) == 0 || (len(s.Argv) == 1 && strings.TrimSpace(s.Argv[0]) == "") {
		return nil, ErrEmptyCommand
	}

	if s.Shell == "" || s.Shell == ShellNone {
		if len(s.Argv) > 1 {
			return s.Argv, nil
		}
		words, err := shellquote.Split(s.Argv[0])
		if err != nil {
			return nil, fmt.Errorf("failed to split command %q: %w", s.Argv[0], err)
		}
		if len(words) == 0 {
			return nil, ErrEmptyCommand
		}
		return words, nil
	}

	return shellArgs(s.Shell, strings.Join(s.Argv, " ")), nil
}

// String returns the command line for display.
func (s CommandSpec) String() string {
	if s.Shell == "" || s.Shell == ShellNone {
		if len(s.Argv) == 1 {
			return s.Argv[0]
		}
		return shellquote.Join(s.Argv...)
	}
	return strings.Join(s.Argv, " ")
}

func shellArgs(shell, command string) []string {
	name := strings.ToLower(filepath.Base(shell))
	name = strings.TrimSuffix(name, ".exe")

	switch name {
	case "cmd":
		return []string{shell, "/C", command}
	case "powershell", "pwsh":
		return []string{shell, "-NoProfile", "-Command", command}
	default:
		return []string{shell, "-c", command}
	}
}
