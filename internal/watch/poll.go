package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// snapshot maps every path under the roots to its last observed stat.
type snapshot map[string]os.FileInfo

// pollBackend synthesizes ChangeEvents by re-scanning the roots at a fixed
// interval and diffing consecutive snapshots.
type pollBackend struct {
	events  chan ChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	config  *Config
	roots   []string

	// prev is only touched by the poll goroutine after Start returns
	prev snapshot
}

func newPollBackend(config *Config) *pollBackend {
	return &pollBackend{
		events: make(chan ChangeEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		config: config,
	}
}

// Start takes the baseline snapshot and begins polling.
func (pb *pollBackend) Start(roots []string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.running {
		return fmt.Errorf("watcher already running")
	}

	pb.roots = roots
	pb.prev = pb.scan()

	interval := pb.config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	pb.running = true
	pb.wg.Add(1)
	go pb.poll(interval)

	return nil
}

// Stop stops polling and closes the Events and Errors channels.
func (pb *pollBackend) Stop() error {
	pb.mu.Lock()
	if pb.stopped {
		pb.mu.Unlock()
		return nil
	}
	pb.running = false
	pb.stopped = true
	pb.mu.Unlock()

	close(pb.done)
	pb.wg.Wait()

	close(pb.events)
	close(pb.errors)
	return nil
}

func (pb *pollBackend) Events() <-chan ChangeEvent {
	return pb.events
}

func (pb *pollBackend) Errors() <-chan error {
	return pb.errors
}

func (pb *pollBackend) poll(interval time.Duration) {
	defer pb.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.done:
			return

		case now := <-ticker.C:
			cur := pb.scan()
			changes := diffSnapshots(pb.prev, cur, now)
			pb.prev = cur

			for _, ev := range changes {
				select {
				case pb.events <- ev:
				case <-pb.done:
					return
				}
			}
		}
	}
}

// scan walks every root. Unreadable entries are left out of the snapshot,
// which reports them as removed until they become readable again.
func (pb *pollBackend) scan() snapshot {
	snap := make(snapshot)
	for _, root := range pb.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() && path != root && pb.config.pruned(path) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			snap[path] = info
			return nil
		})
	}
	return snap
}

// diffSnapshots compares two scans and returns the changes between them,
// sorted by path. A removed and a created path that are the same file are
// reported as a single rename.
func diffSnapshots(prev, cur snapshot, now time.Time) []ChangeEvent {
	var removed, created []string
	for path := range prev {
		if _, ok := cur[path]; !ok {
			removed = append(removed, path)
		}
	}
	for path := range cur {
		if _, ok := prev[path]; !ok {
			created = append(created, path)
		}
	}
	sort.Strings(removed)
	sort.Strings(created)

	var changes []ChangeEvent
	renamedTo := make(map[string]bool)

	for _, old := range removed {
		renamed := false
		for _, path := range created {
			if renamedTo[path] || !os.SameFile(prev[old], cur[path]) {
				continue
			}
			changes = append(changes, ChangeEvent{Path: path, OldPath: old, Kind: KindRename, Time: now})
			renamedTo[path] = true
			renamed = true
			break
		}
		if !renamed {
			changes = append(changes, ChangeEvent{Path: old, Kind: KindRemove, Time: now})
		}
	}

	for _, path := range created {
		if !renamedTo[path] {
			changes = append(changes, ChangeEvent{Path: path, Kind: KindCreate, Time: now})
		}
	}

	for path, info := range cur {
		before, ok := prev[path]
		if !ok {
			continue
		}
		switch {
		case info.IsDir() != before.IsDir():
			changes = append(changes, ChangeEvent{Path: path, Kind: KindCreate, Time: now})
		case !info.IsDir() && (info.Size() != before.Size() || !info.ModTime().Equal(before.ModTime())):
			changes = append(changes, ChangeEvent{Path: path, Kind: KindModify, Time: now})
		case info.Mode() != before.Mode():
			changes = append(changes, ChangeEvent{Path: path, Kind: KindMetadata, Time: now})
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}
