package watch

import (
	"os"
	"time"
)

// renameWindow is how long a remove or rename-from is held back waiting for
// the create that completes a rename.
const renameWindow = 50 * time.Millisecond

// renameTracker merges a remove/rename-from followed by a create of a
// different name into one KindRename event. The merge is best-effort: it only
// happens when the native backend flagged an explicit rename or when both
// names resolve to the same file identity.
//
// renameTracker is not safe for concurrent use; the native event loop owns it.
type renameTracker struct {
	// ids remembers the last known identity of paths seen on create/modify so
	// a later remove can be matched against a create of another name.
	ids map[string]os.FileInfo

	held         *ChangeEvent
	heldExplicit bool
	heldInfo     os.FileInfo
}

func newRenameTracker() *renameTracker {
	return &renameTracker{ids: make(map[string]os.FileInfo)}
}

// remember records the identity of path, or forgets it when info is nil.
func (rt *renameTracker) remember(path string, info os.FileInfo) {
	if info == nil {
		delete(rt.ids, path)
		return
	}
	rt.ids[path] = info
}

// pending reports whether an event is being held back.
func (rt *renameTracker) pending() bool {
	return rt.held != nil
}

// observe feeds one converted event into the tracker and returns the events
// that are ready to be emitted, in order. info is the current stat of
// ev.Path for create and modify events, nil otherwise.
//
// A raw rename-from arrives as KindRename with Path set to the old name.
func (rt *renameTracker) observe(ev ChangeEvent, info os.FileInfo) []ChangeEvent {
	var out []ChangeEvent

	switch ev.Kind {
	case KindRemove, KindRename:
		out = append(out, rt.expire()...)
		held := ev
		rt.held = &held
		rt.heldExplicit = ev.Kind == KindRename
		rt.heldInfo = rt.ids[ev.Path]
		delete(rt.ids, ev.Path)
		return out

	case KindCreate:
		rt.remember(ev.Path, info)
		if rt.held != nil && rt.held.Path != ev.Path && rt.sameFile(info) {
			renamed := ChangeEvent{
				Path:    ev.Path,
				OldPath: rt.held.Path,
				Kind:    KindRename,
				Time:    ev.Time,
			}
			rt.clear()
			return append(out, renamed)
		}

	case KindModify:
		rt.remember(ev.Path, info)
	}

	out = append(out, rt.expire()...)
	return append(out, ev)
}

// expire releases a held event as a plain removal.
func (rt *renameTracker) expire() []ChangeEvent {
	if rt.held == nil {
		return nil
	}
	ev := *rt.held
	ev.Kind = KindRemove
	rt.clear()
	return []ChangeEvent{ev}
}

func (rt *renameTracker) sameFile(info os.FileInfo) bool {
	if rt.heldExplicit {
		return true
	}
	return rt.heldInfo != nil && info != nil && os.SameFile(rt.heldInfo, info)
}

func (rt *renameTracker) clear() {
	rt.held = nil
	rt.heldExplicit = false
	rt.heldInfo = nil
}
