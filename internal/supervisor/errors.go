package supervisor

import "errors"

// Errors returned by Supervisor operations.
//
// Check them with errors.Is():
//
//	if errors.Is(err, supervisor.ErrSpawn) {
//	    // the command could not be started; keep watching
//	}
var (
	// ErrSpawn is returned when the command could not be started.
	// The Supervisor stays Idle.
	ErrSpawn = errors.New("failed to spawn command")

	// ErrKillFailed is returned when a child that outlived its grace
	// period could not be force-killed. It is not recoverable.
	ErrKillFailed = errors.New("failed to force-kill command")

	// ErrBusy is returned by Start when a child is already live.
	ErrBusy = errors.New("a command is already running")

	// ErrNotRunning is returned when an operation needs a live child.
	ErrNotRunning = errors.New("no command is running")

	// ErrStillRunning is returned by Reap before the child has exited.
	ErrStillRunning = errors.New("command has not exited")

	// ErrEmptyCommand is returned when a CommandSpec has nothing to run.
	ErrEmptyCommand = errors.New("empty command")

	// ErrUnknownSignal is returned by ParseSignal for unsupported names.
	ErrUnknownSignal = errors.New("unknown signal")
)
