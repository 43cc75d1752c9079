package ui

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/watch"
)

func TestMain(m *testing.M) {
	DisableColor()
	os.Exit(m.Run())
}

func batchOf(paths ...string) debounce.Batch {
	d := debounce.New(nil)
	defer d.Stop()
	for _, p := range paths {
		d.Add(watch.ChangeEvent{Path: p, Kind: watch.KindModify, Time: time.Now()})
	}
	return d.Flush()
}

func TestRenderPlainWhenColorDisabled(t *testing.T) {
	assert.Equal(t, "ok", RenderPass("ok"))
	assert.Equal(t, "bad", RenderFail("bad"))
	assert.Equal(t, "hm", RenderWarn("hm"))
}

func TestReporter_Triggered(t *testing.T) {
	root := filepath.FromSlash("/proj")
	var out bytes.Buffer
	r := &Reporter{Out: &out, Root: root}

	r.Triggered(batchOf(
		filepath.Join(root, "a.go"),
		filepath.Join(root, "b.go"),
		filepath.Join(root, "c.go"),
		filepath.Join(root, "sub", "d.go"),
		filepath.Join(root, "sub", "e.go"),
	))

	line := out.String()
	assert.Contains(t, line, "a.go, b.go, c.go")
	assert.Contains(t, line, "and 2 more")
	assert.NotContains(t, line, root+string(filepath.Separator))
}

func TestReporter_PathOutsideRootKept(t *testing.T) {
	var out bytes.Buffer
	r := &Reporter{Out: &out, Root: filepath.FromSlash("/proj")}

	other := filepath.FromSlash("/elsewhere/x.go")
	r.Triggered(batchOf(other))
	assert.Contains(t, out.String(), other)
}

func TestReporter_StartedAndExited(t *testing.T) {
	var out bytes.Buffer
	r := &Reporter{Out: &out}

	r.Started(supervisor.CommandSpec{Argv: []string{"go", "test", "./..."}}, 1234)
	r.Exited(supervisor.ExitStatus{Duration: 1234 * time.Millisecond})
	r.Exited(supervisor.ExitStatus{Code: 2, Duration: 40 * time.Millisecond})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if assert.Len(t, lines, 3) {
		assert.Contains(t, lines[0], "go test ./...")
		assert.Contains(t, lines[0], "pid 1234")
		assert.Contains(t, lines[1], "done in 1.23s")
		assert.Contains(t, lines[2], "exit status 2 in 40ms")
	}
}

func TestReporter_QuietKeepsFailures(t *testing.T) {
	var out bytes.Buffer
	r := &Reporter{Out: &out, Quiet: true}

	r.Triggered(batchOf("/proj/a.go"))
	r.Started(supervisor.CommandSpec{Argv: []string{"make"}}, 1)
	r.Exited(supervisor.ExitStatus{})
	assert.Empty(t, out.String())

	r.Exited(supervisor.ExitStatus{Signal: "SIGKILL", Forced: true, Code: -1})
	r.SpawnFailed(errors.New("exec: \"nope\": executable file not found"))
	r.Degraded(errors.New("inotify watch limit reached"))

	got := out.String()
	assert.Contains(t, got, "killed after grace period")
	assert.Contains(t, got, "executable file not found")
	assert.Contains(t, got, "polling instead")
}

func TestClearScreen_NotATerminal(t *testing.T) {
	var screen bytes.Buffer
	r := &Reporter{Screen: &screen, Clear: true}

	r.Started(supervisor.CommandSpec{Argv: []string{"make"}}, 42)
	assert.Empty(t, screen.String())
	assert.False(t, IsTerminal(&screen))
}

// TestReporter_ClearsOnlyWhenRunStarts verifies a trigger that may be queued
// or ignored leaves the running command's output on screen.
func TestReporter_ClearsOnlyWhenRunStarts(t *testing.T) {
	var out bytes.Buffer
	clears := 0
	r := &Reporter{Out: &out, Screen: &out, Clear: true}
	r.clearScreen = func(io.Writer) { clears++ }

	r.Triggered(batchOf("/proj/a.go"))
	r.Triggered(batchOf("/proj/b.go"))
	assert.Equal(t, 0, clears)

	r.Started(supervisor.CommandSpec{Argv: []string{"make"}}, 42)
	assert.Equal(t, 1, clears)

	r.Quiet = true
	r.Started(supervisor.CommandSpec{Argv: []string{"make"}}, 43)
	assert.Equal(t, 2, clears)
}
