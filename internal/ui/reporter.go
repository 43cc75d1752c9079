package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/runloop"
	"github.com/steveyegge/watchrun/internal/supervisor"
)

// maxListed is how many changed paths a trigger line names before eliding.
const maxListed = 3

// Reporter prints one status line per run loop event.
type Reporter struct {
	// Out receives status lines (normally stderr)
	Out io.Writer

	// Screen is cleared before each run when Clear is set
	Screen io.Writer

	// Clear clears Screen whenever a run starts
	Clear bool

	// Quiet suppresses everything except failures
	Quiet bool

	// Root shortens paths in trigger lines
	Root string

	clearScreen func(io.Writer) // ClearScreen unless replaced in tests
}

var _ runloop.Reporter = (*Reporter)(nil)

// Triggered names the changed paths. The trigger may be queued or ignored,
// so the screen is left alone until a run starts.
func (r *Reporter) Triggered(batch debounce.Batch) {
	if r.Quiet || batch.Empty() {
		return
	}
	r.printf("%s %s\n", RenderAccent("↻"), r.describe(batch))
}

// Started clears the screen if asked and names the command and its pid.
func (r *Reporter) Started(cmd supervisor.CommandSpec, pid int) {
	if r.Clear && r.Screen != nil {
		wipe := r.clearScreen
		if wipe == nil {
			wipe = ClearScreen
		}
		wipe(r.Screen)
	}
	if r.Quiet {
		return
	}
	r.printf("%s %s %s\n", RenderAccent("▶"), cmd.String(), RenderMuted(fmt.Sprintf("(pid %d)", pid)))
}

// Exited reports how the command ended.
func (r *Reporter) Exited(status supervisor.ExitStatus) {
	took := RenderMuted("in " + roundDuration(status.Duration).String())
	if status.Success() {
		if !r.Quiet {
			r.printf("%s %s %s\n", RenderPass("✓"), "done", took)
		}
		return
	}
	r.printf("%s %s %s\n", RenderFail("✗"), status.String(), took)
}

// SpawnFailed reports a command that could not be started.
func (r *Reporter) SpawnFailed(err error) {
	r.printf("%s %v\n", RenderFail("✗"), err)
}

// Degraded warns that changes are now detected by polling.
func (r *Reporter) Degraded(err error) {
	r.printf("%s native watching unavailable, polling instead: %v\n", RenderWarn("⚠"), err)
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}

func (r *Reporter) describe(batch debounce.Batch) string {
	paths := batch.Paths
	names := make([]string, 0, maxListed)
	for i, p := range paths {
		if i == maxListed {
			break
		}
		names = append(names, r.rel(p))
	}
	s := strings.Join(names, ", ")
	if extra := len(paths) - len(names); extra > 0 {
		s += RenderMuted(fmt.Sprintf(" and %d more", extra))
	}
	return s
}

func (r *Reporter) rel(path string) string {
	if r.Root == "" {
		return path
	}
	rel, err := filepath.Rel(r.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (r *Reporter) printf(format string, args ...interface{}) {
	if r.Out == nil {
		return
	}
	fmt.Fprintf(r.Out, format, args...)
}
