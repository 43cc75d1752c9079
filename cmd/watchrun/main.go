// Command watchrun watches files and re-runs a command when they change.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/steveyegge/watchrun/internal/config"
	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/watch"
)

// Exit codes besides the command's own.
const (
	exitFatal  = 1
	exitConfig = 2
)

var (
	configFile string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "watchrun [flags] [--] command [args...]",
	Short: "Re-run a command whenever watched files change",
	Long: `Watch files and directories and re-run a command when they change.

Changes are batched: the command runs once the watched paths have been quiet
for the debounce period, or when a batch has been open for debounce-cap. If
the command is still running when a new batch arrives, --on-busy decides
what happens:

  restart  stop the command (signal, then kill after --grace) and run it again
  queue    let it finish, then run it once for the latest batch
  ignore   drop the batch

The command sees the changed paths in WATCHRUN_CHANGED_PATHS and friends.

Settings are read from .watchrun.yaml (or .toml, .json) in the current
directory or $HOME, then WATCHRUN_* environment variables, then flags.

Examples:
  watchrun -- go test ./...
  watchrun -e '*.tmp' --on-busy queue make
  watchrun --shell none -i '*.rs' -e 'target/**' cargo build`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default .watchrun.yaml in . or $HOME)")
	addRunFlags(rootCmd.Flags())
}

// addRunFlags registers one flag per config key. Flag names match the keys
// so viper can bind them directly.
func addRunFlags(f *pflag.FlagSet) {
	d := config.Defaults()

	// Everything after the first positional argument belongs to the command.
	f.SetInterspersed(false)

	f.StringSliceP("watch", "w", d.Watch, "Path to watch (repeatable)")
	f.StringSliceP("include", "i", nil, "Only react to paths matching this glob (repeatable)")
	f.StringSliceP("exclude", "e", nil, "Ignore paths matching this glob (repeatable)")
	f.StringSlice("ignore-file", nil, "Extra gitignore-style file to honor (repeatable)")
	f.Bool("no-vcs-ignore", false, "Do not honor .gitignore and friends")
	f.Bool("no-default-excludes", false, "Do not exclude VCS and build directories by default")
	f.String("case", d.Case, "Pattern case matching: auto, sensitive or insensitive")

	f.Duration("debounce", debounce.DefaultQuiet, "Quiet period before running")
	f.Duration("debounce-cap", debounce.DefaultCap, "Longest a batch may stay open")
	f.String("on-busy", d.OnBusy, "On change while running: restart, queue or ignore")
	f.StringP("signal", "s", d.Signal, "Signal asking the command to stop")
	f.Duration("grace", supervisor.DefaultGracePeriod, "Wait this long after the signal before killing")

	f.BoolP("clear", "c", false, "Clear the screen before each run")
	f.Bool("initial", false, "Run the command once at startup")
	f.Bool("once", false, "Exit after the first run completes")
	f.Bool("propagate-exit", false, "Exit with the last command's exit code")

	f.String("shell", d.Shell, `Shell interpreting the command, or "none"`)
	f.String("workdir", "", "Working directory for the command")
	f.StringArray("env", nil, "KEY=VALUE added to the command's environment (repeatable)")

	f.Bool("poll", false, "Poll instead of using native notifications")
	f.Duration("poll-interval", watch.DefaultPollInterval, "Polling interval")

	f.String("log-file", "", "Write diagnostic logs to this file")
	f.BoolP("verbose", "v", false, "Write diagnostic logs to stderr")
	f.BoolP("quiet", "q", false, "Only report failures")
	f.Bool("no-color", false, "Disable colored output")
	f.Int("monitor-port", 0, "Serve a WebSocket status feed on this port (0 disables)")
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var status exitStatus
	if errors.As(err, &status) {
		os.Exit(int(status))
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, config.ErrInvalid) {
		os.Exit(exitConfig)
	}
	os.Exit(exitFatal)
}

// exitStatus is returned by the root command to exit quietly with the
// command's own exit code.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// loadConfig merges the config file, environment and the given command's
// flags into a Config.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	home, _ := os.UserHomeDir()
	dirs := []string{"."}
	if home != "" {
		dirs = append(dirs, home)
	}

	if err := config.Setup(v, configFile, dirs...); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if validate {
		return config.Load(v)
	}
	return config.Decode(v)
}
