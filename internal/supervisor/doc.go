// Package supervisor owns the lifecycle of the command watchrun re-runs.
//
// A Supervisor holds at most one child at a time and moves it through an
// explicit state machine:
//
//	Idle --Start--> Running --Terminate--> Terminating --exit--> Idle
//	Running --exit--> Idle
//	Running --Terminate--> Terminating --exit--> Restarting --Replace--> Running
//
// Restart does the last line in one blocking call.
//
// Children are started in their own process group (Setpgid on unix,
// CREATE_NEW_PROCESS_GROUP on windows) so that a signal reaches everything
// the command spawned. Terminate sends the graceful signal and arms a grace
// timer; if the group is still alive when it fires, the group is killed
// (SIGKILL, or taskkill /T /F on windows). A stopping child's exit is only
// confirmed once its whole group is gone, so a grandchild that ignores the
// signal is killed even after the leader has exited. A group that is
// already gone is treated as successfully signalled.
//
// Exit is observed on a dedicated goroutine that closes the channel returned
// by Done, so a caller can select on it alongside other events and call Reap
// once it closes:
//
//	select {
//	case <-sup.Done():
//	    status, err := sup.Reap()
//	    ...
//	case <-ctx.Done():
//	    sup.Interrupt(context.Background())
//	}
//
// Each run receives the paths of the batch that triggered it in
// WATCHRUN_CHANGED_PATHS and related variables; see BuildEnv.
package supervisor
