package runloop

import (
	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
)

// Reporter is told about everything the loop does. All methods are called
// from the loop goroutine.
type Reporter interface {
	// Triggered is called when a debounced batch is flushed
	Triggered(batch debounce.Batch)

	// Started is called after the command was spawned
	Started(cmd supervisor.CommandSpec, pid int)

	// Exited is called after a child's exit was confirmed
	Exited(status supervisor.ExitStatus)

	// SpawnFailed is called when the command could not be started
	SpawnFailed(err error)

	// Degraded is called when the watcher fell back to polling
	Degraded(err error)
}

// NopReporter ignores everything. Embed it to implement only some methods.
type NopReporter struct{}

func (NopReporter) Triggered(debounce.Batch)            {}
func (NopReporter) Started(supervisor.CommandSpec, int) {}
func (NopReporter) Exited(supervisor.ExitStatus)        {}
func (NopReporter) SpawnFailed(error)                   {}
func (NopReporter) Degraded(error)                      {}

// reporters fans out to every Reporter in order.
type reporters []Reporter

func (rs reporters) Triggered(batch debounce.Batch) {
	for _, r := range rs {
		r.Triggered(batch)
	}
}

func (rs reporters) Started(cmd supervisor.CommandSpec, pid int) {
	for _, r := range rs {
		r.Started(cmd, pid)
	}
}

func (rs reporters) Exited(status supervisor.ExitStatus) {
	for _, r := range rs {
		r.Exited(status)
	}
}

func (rs reporters) SpawnFailed(err error) {
	for _, r := range rs {
		r.SpawnFailed(err)
	}
}

func (rs reporters) Degraded(err error) {
	for _, r := range rs {
		r.Degraded(err)
	}
}
