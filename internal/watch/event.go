package watch

import (
	"fmt"
	"time"
)

// Kind represents the type of file system change.
type Kind int

const (
	// KindCreate indicates a new file or directory was created.
	KindCreate Kind = iota
	// KindModify indicates an existing file was written to.
	KindModify
	// KindRemove indicates a file or directory was removed.
	KindRemove
	// KindRename indicates a file was moved to a new name.
	KindRename
	// KindMetadata indicates only permissions or other metadata changed.
	KindMetadata
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindRemove:
		return "remove"
	case KindRename:
		return "rename"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// ChangeEvent is one observed file system change.
type ChangeEvent struct {
	// Path is the absolute path that changed. For renames it is the new name.
	Path string
	// OldPath is the previous name of a renamed file, when known.
	OldPath string
	// Kind is the change that occurred.
	Kind Kind
	// Time is when the backend observed the change.
	Time time.Time
}

func (e ChangeEvent) String() string {
	if e.Kind == KindRename && e.OldPath != "" {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
