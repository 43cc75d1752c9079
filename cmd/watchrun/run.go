package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/watchrun/internal/config"
	"github.com/steveyegge/watchrun/internal/filter"
	"github.com/steveyegge/watchrun/internal/logging"
	"github.com/steveyegge/watchrun/internal/monitor"
	"github.com/steveyegge/watchrun/internal/runloop"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/ui"
	"github.com/steveyegge/watchrun/internal/watch"
)

func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		v.Set("command", args)
	}
	// StringArray values may contain commas; viper would split them.
	if cmd.Flags().Changed("env") {
		env, _ := cmd.Flags().GetStringArray("env")
		v.Set("env", env)
	}

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := run(ctx, cfg)
	if err != nil {
		return err
	}
	if code != 0 {
		return exitStatus(code)
	}
	return nil
}

// run wires the watcher, filter, supervisor and run loop together and blocks
// until ctx is cancelled or the loop finishes on its own.
func run(ctx context.Context, cfg *config.Config) (int, error) {
	if cfg.NoColor {
		ui.DisableColor()
	}

	logOpts := logging.DefaultOptions()
	logOpts.Verbose = cfg.Verbose
	logOpts.File = cfg.LogFile
	logs := logging.Open(logOpts)
	defer logs.Close()
	logger := logs.For("watchrun")

	roots := make([]string, 0, len(cfg.Watch))
	for _, path := range cfg.Watch {
		abs, err := filepath.Abs(path)
		if err != nil {
			return exitFatal, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return exitConfig, fmt.Errorf("%w: cannot watch %s: %w", config.ErrInvalid, path, err)
		}
		roots = append(roots, abs)
	}

	var discovered []string
	if !cfg.NoVCSIgnore {
		seen := make(map[string]bool)
		for _, root := range roots {
			files, err := filter.DiscoverIgnoreFiles(root)
			if err != nil {
				logger.Printf("Failed to discover ignore files for %s: %v", root, err)
				continue
			}
			for _, f := range files {
				if !seen[f] {
					seen[f] = true
					discovered = append(discovered, f)
				}
			}
		}
		logger.Printf("Using %d ignore file(s)", len(discovered))
	}

	filterOpts, err := cfg.FilterOptions(roots, discovered)
	if err != nil {
		return exitConfig, err
	}
	set, err := filter.New(filterOpts)
	if err != nil {
		return exitConfig, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	spec, err := cfg.CommandSpec()
	if err != nil {
		return exitConfig, err
	}

	sup := supervisor.New(&supervisor.Config{
		Launcher: supervisor.NewExecLauncher(),
		Logger:   logs.For("supervisor"),
	})

	watchCfg := watch.DefaultConfig()
	watchCfg.ForcePoll = cfg.Poll
	watchCfg.PollInterval = cfg.PollInterval
	watchCfg.Prune = set.Prune
	watchCfg.Logger = logs.For("watch")
	watcher := watch.New(watchCfg)

	reporter := &ui.Reporter{
		Out:    os.Stderr,
		Screen: os.Stdout,
		Clear:  cfg.Clear,
		Quiet:  cfg.Quiet,
	}
	if len(roots) == 1 {
		reporter.Root = roots[0]
	}
	reporters := []runloop.Reporter{reporter}

	if cfg.MonitorPort > 0 {
		server := monitor.NewServer(&monitor.Config{
			Port:   cfg.MonitorPort,
			Logger: logs.For("monitor"),
		})
		handler := monitor.NewHandler(server, logs.For("monitor"))
		if err := server.Start(); err != nil {
			return exitFatal, err
		}
		defer func() {
			if err := server.Stop(); err != nil {
				logger.Printf("Monitor shutdown: %v", err)
			}
		}()
		reporters = append(reporters, handler)
		if !cfg.Quiet {
			fmt.Fprintf(os.Stderr, "%s status feed at ws://%s/ws\n", ui.RenderAccent("●"), server.Addr())
		}
	}

	loop := runloop.New(&runloop.Config{
		Command:        spec,
		Policy:         cfg.Policy(),
		InitialRun:     cfg.Initial,
		ExitOnComplete: cfg.Once,
		PropagateExit:  cfg.PropagateExit,
		Debounce:       cfg.DebounceConfig(),
		Logger:         logs.For("runloop"),
	}, watcher, set, sup, reporters...)
	watchCfg.OnDegrade = loop.Degraded

	if err := watcher.Start(roots); err != nil {
		return exitFatal, fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			logger.Printf("Watcher shutdown: %v", err)
		}
	}()

	if !cfg.Quiet {
		fmt.Fprintf(os.Stderr, "%s watching %s %s\n", ui.RenderAccent("●"),
			describeRoots(roots), ui.RenderMuted("("+watcher.Mode().String()+")"))
	}

	return loop.Run(ctx)
}

func describeRoots(roots []string) string {
	if len(roots) == 1 {
		return roots[0]
	}
	return fmt.Sprintf("%d paths", len(roots))
}
