// Package watch turns file system activity under a set of root paths into a
// stream of ChangeEvents.
//
// # Backends
//
// Two backends implement the Backend interface:
//
//   - native: fsnotify (inotify, kqueue, ReadDirectoryChangesW, FEN)
//   - poll: re-scans the roots every PollInterval and diffs the snapshots
//
// Watcher starts the native backend and substitutes the poller when native
// watching cannot be set up, or later when the kernel runs out of watch
// resources (inotify's ENOSPC, EMFILE, queue overflow). The switch is logged
// and reported through Config.OnDegrade; consumers keep reading the same
// Events() channel.
//
//	w := watch.New(&watch.Config{
//	    PollInterval: time.Second,
//	    Prune:        func(dir string) bool { return filepath.Base(dir) == ".git" },
//	})
//	if err := w.Start([]string{"."}); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
//	for ev := range w.Events() {
//	    fmt.Println(ev.Kind, ev.Path)
//	}
//
// # Recursion
//
// fsnotify watches single directories. The native backend walks every root at
// Start and registers each directory Prune does not reject, then registers
// directories created later when their create event arrives.
//
// # Event kinds
//
// The native backend maps fsnotify operations as follows:
//   - fsnotify.Create → KindCreate
//   - fsnotify.Write → KindModify
//   - fsnotify.Remove → KindRemove
//   - fsnotify.Rename → held, then KindRename or KindRemove
//   - fsnotify.Chmod → KindMetadata
//
// Renames are normalized on a best-effort basis. A rename-from or remove is
// held for a short window; if a create of a different name follows and
// either the backend reported an explicit rename or both names are the same
// file, one KindRename is emitted with OldPath set. Otherwise the held event
// is emitted as KindRemove. Consumers must not rely on renames being merged.
//
// # Graceful Shutdown
//
// Stop blocks until the backend goroutines exit and then closes Events() and
// Errors().
package watch
