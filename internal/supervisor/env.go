package supervisor

import (
	"os"
	"sort"
	"strings"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/watch"
)

// Environment variables describing the batch that triggered a run. Path
// lists are separated by os.PathListSeparator.
const (
	EnvChangedPaths     = "WATCHRUN_CHANGED_PATHS"
	EnvCommonPath       = "WATCHRUN_COMMON_PATH"
	EnvCreatedPaths     = "WATCHRUN_CREATED_PATHS"
	EnvWrittenPaths     = "WATCHRUN_WRITTEN_PATHS"
	EnvRemovedPaths     = "WATCHRUN_REMOVED_PATHS"
	EnvRenamedPaths     = "WATCHRUN_RENAMED_PATHS"
	EnvMetaChangedPaths = "WATCHRUN_META_CHANGED_PATHS"
)

var kindVars = []struct {
	kind watch.Kind
	name string
}{
	{watch.KindCreate, EnvCreatedPaths},
	{watch.KindModify, EnvWrittenPaths},
	{watch.KindRemove, EnvRemovedPaths},
	{watch.KindRename, EnvRenamedPaths},
	{watch.KindMetadata, EnvMetaChangedPaths},
}

// BuildEnv returns base followed by the overlay and the change variables for
// batch. Later entries win, so the overlay overrides inherited values.
// An empty batch, as for the initial run, adds no change variables.
func BuildEnv(base []string, overlay map[string]string, batch debounce.Batch) []string {
	env := make([]string, 0, len(base)+len(overlay)+len(kindVars)+2)
	env = append(env, base...)

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}

	if batch.Empty() {
		return env
	}

	sep := string(os.PathListSeparator)
	env = append(env,
		EnvChangedPaths+"="+strings.Join(batch.Paths, sep),
		EnvCommonPath+"="+batch.CommonPath(),
	)
	for _, kv := range kindVars {
		if paths := batch.PathsOf(kv.kind); len(paths) > 0 {
			env = append(env, kv.name+"="+strings.Join(paths, sep))
		}
	}
	return env
}
