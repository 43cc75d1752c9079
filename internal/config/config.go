// Package config loads watchrun's settings.
//
// Sources, lowest to highest precedence: built-in defaults, a
// .watchrun.yaml (or .toml, .json) file, WATCHRUN_* environment variables
// and command-line flags. All of them meet in a viper instance; Load decodes
// the result into a Config and validates it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/filter"
	"github.com/steveyegge/watchrun/internal/runloop"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/watch"
)

// FileName is the base name of the config file, without extension.
const FileName = ".watchrun"

// EnvPrefix prefixes environment variable overrides, e.g. WATCHRUN_DEBOUNCE.
const EnvPrefix = "WATCHRUN"

// Config is the complete set of user settings.
type Config struct {
	// Watch lists the root paths to watch
	Watch []string `mapstructure:"watch" yaml:"watch"`

	// Include and Exclude are glob patterns; exclude wins
	Include []string `mapstructure:"include" yaml:"include"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`

	// IgnoreFiles are extra gitignore-style files to honor
	IgnoreFiles []string `mapstructure:"ignore-file" yaml:"ignore-file"`

	// NoVCSIgnore skips .gitignore and friends found around the roots
	NoVCSIgnore bool `mapstructure:"no-vcs-ignore" yaml:"no-vcs-ignore"`

	// NoDefaultExcludes disables the built-in exclude list
	NoDefaultExcludes bool `mapstructure:"no-default-excludes" yaml:"no-default-excludes"`

	// Case is auto, sensitive or insensitive
	Case string `mapstructure:"case" yaml:"case"`

	// Debounce is the quiet period; DebounceCap bounds a batch's age
	Debounce    time.Duration `mapstructure:"debounce" yaml:"debounce"`
	DebounceCap time.Duration `mapstructure:"debounce-cap" yaml:"debounce-cap"`

	// OnBusy is the policy for changes while the command runs
	OnBusy string `mapstructure:"on-busy" yaml:"on-busy"`

	// Signal and Grace control how a running command is stopped
	Signal string        `mapstructure:"signal" yaml:"signal"`
	Grace  time.Duration `mapstructure:"grace" yaml:"grace"`

	Clear         bool `mapstructure:"clear" yaml:"clear"`
	Initial       bool `mapstructure:"initial" yaml:"initial"`
	Once          bool `mapstructure:"once" yaml:"once"`
	PropagateExit bool `mapstructure:"propagate-exit" yaml:"propagate-exit"`

	// Command is the command line; Shell interprets it unless "none"
	Command []string `mapstructure:"command" yaml:"command"`
	Shell   string   `mapstructure:"shell" yaml:"shell"`
	Workdir string   `mapstructure:"workdir" yaml:"workdir"`

	// Env holds KEY=VALUE pairs added to the command's environment
	Env []string `mapstructure:"env" yaml:"env"`

	Poll         bool          `mapstructure:"poll" yaml:"poll"`
	PollInterval time.Duration `mapstructure:"poll-interval" yaml:"poll-interval"`

	LogFile     string `mapstructure:"log-file" yaml:"log-file"`
	Verbose     bool   `mapstructure:"verbose" yaml:"verbose"`
	Quiet       bool   `mapstructure:"quiet" yaml:"quiet"`
	NoColor     bool   `mapstructure:"no-color" yaml:"no-color"`
	MonitorPort int    `mapstructure:"monitor-port" yaml:"monitor-port"`
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		Watch:        []string{"."},
		Include:      []string{},
		Exclude:      []string{},
		IgnoreFiles:  []string{},
		Case:         "auto",
		Debounce:     debounce.DefaultQuiet,
		DebounceCap:  debounce.DefaultCap,
		OnBusy:       string(runloop.PolicyRestart),
		Signal:       supervisor.SignalName(supervisor.DefaultSignal),
		Grace:        supervisor.DefaultGracePeriod,
		Shell:        supervisor.DefaultShell,
		Command:      []string{},
		Env:          []string{},
		PollInterval: watch.DefaultPollInterval,
	}
}

// SetDefaults registers Defaults with v so environment variables can
// override every key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("watch", d.Watch)
	v.SetDefault("include", d.Include)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("ignore-file", d.IgnoreFiles)
	v.SetDefault("no-vcs-ignore", d.NoVCSIgnore)
	v.SetDefault("no-default-excludes", d.NoDefaultExcludes)
	v.SetDefault("case", d.Case)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("debounce-cap", d.DebounceCap)
	v.SetDefault("on-busy", d.OnBusy)
	v.SetDefault("signal", d.Signal)
	v.SetDefault("grace", d.Grace)
	v.SetDefault("clear", d.Clear)
	v.SetDefault("initial", d.Initial)
	v.SetDefault("once", d.Once)
	v.SetDefault("propagate-exit", d.PropagateExit)
	v.SetDefault("command", d.Command)
	v.SetDefault("shell", d.Shell)
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("env", d.Env)
	v.SetDefault("poll", d.Poll)
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("log-file", d.LogFile)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("monitor-port", d.MonitorPort)
}

// Setup registers defaults and environment overrides with v and reads the
// config file. An explicit file must exist; otherwise FileName is looked up
// in dirs and a missing file is not an error.
func Setup(v *viper.Viper, file string, dirs ...string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: failed to read %s: %w", ErrInvalid, file, err)
		}
		return nil
	}

	v.SetConfigName(FileName)
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: failed to read config file: %w", ErrInvalid, err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes v into a Config without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// A command written as one string in a file or the environment would
	// otherwise be split on commas.
	if s, ok := v.Get("command").(string); ok {
		cmd, err := commandFromString(s, cfg.Shell)
		if err != nil {
			return nil, err
		}
		cfg.Command = cmd
	}
	return cfg, nil
}

func commandFromString(s, shell string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if shell != "" && shell != supervisor.ShellNone {
		return []string{s}, nil
	}
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: command %q: %w", ErrInvalid, s, err)
	}
	return words, nil
}

// Validate checks every setting and fills in what can be derived.
func (c *Config) Validate() error {
	if len(c.Command) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, ErrNoCommand)
	}
	if len(c.Watch) == 0 {
		c.Watch = []string{"."}
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive, got %s", ErrInvalid, c.Debounce)
	}
	if c.DebounceCap <= 0 {
		return fmt.Errorf("%w: debounce-cap must be positive, got %s", ErrInvalid, c.DebounceCap)
	}
	if c.Grace < 0 {
		return fmt.Errorf("%w: grace must not be negative, got %s", ErrInvalid, c.Grace)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll-interval must be positive, got %s", ErrInvalid, c.PollInterval)
	}
	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor-port out of range: %d", ErrInvalid, c.MonitorPort)
	}
	if c.Verbose && c.Quiet {
		return fmt.Errorf("%w: verbose and quiet are mutually exclusive", ErrInvalid)
	}
	if _, err := runloop.ParsePolicy(c.OnBusy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := supervisor.ParseSignal(c.Signal); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := parseCase(c.Case); err != nil {
		return err
	}
	if _, err := c.EnvMap(); err != nil {
		return err
	}
	if _, err := c.CommandSpec(); err != nil {
		return err
	}
	return nil
}

// EnvMap parses Env into a map.
func (c *Config) EnvMap() (map[string]string, error) {
	env := make(map[string]string, len(c.Env))
	for _, kv := range c.Env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: env entry %q is not KEY=VALUE", ErrInvalid, kv)
		}
		env[key] = value
	}
	return env, nil
}

// CommandSpec builds the command to run on every trigger.
func (c *Config) CommandSpec() (supervisor.CommandSpec, error) {
	env, err := c.EnvMap()
	if err != nil {
		return supervisor.CommandSpec{}, err
	}
	sig, err := supervisor.ParseSignal(c.Signal)
	if err != nil {
		return supervisor.CommandSpec{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	spec := supervisor.CommandSpec{
		Argv:        c.Command,
		Shell:       c.Shell,
		Dir:         c.Workdir,
		Env:         env,
		Signal:      sig,
		GracePeriod: c.Grace,
	}
	if _, err := spec.Args(); err != nil {
		return supervisor.CommandSpec{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return spec, nil
}

// FilterOptions builds the filter configuration. discovered holds the VCS
// ignore files found around the roots; it is dropped when NoVCSIgnore is set.
func (c *Config) FilterOptions(roots, discovered []string) (filter.Options, error) {
	mode, err := parseCase(c.Case)
	if err != nil {
		return filter.Options{}, err
	}

	ignoreFiles := make([]string, 0, len(discovered)+len(c.IgnoreFiles))
	if !c.NoVCSIgnore {
		ignoreFiles = append(ignoreFiles, discovered...)
	}
	ignoreFiles = append(ignoreFiles, c.IgnoreFiles...)

	return filter.Options{
		Roots:             roots,
		Include:           c.Include,
		Exclude:           c.Exclude,
		IgnoreFiles:       ignoreFiles,
		NoDefaultExcludes: c.NoDefaultExcludes,
		Case:              mode,
	}, nil
}

// DebounceConfig builds the debouncer configuration.
func (c *Config) DebounceConfig() *debounce.Config {
	d := debounce.DefaultConfig()
	d.Quiet = c.Debounce
	d.Cap = c.DebounceCap
	return d
}

// Policy returns the parsed on-busy policy.
func (c *Config) Policy() runloop.Policy {
	p, err := runloop.ParsePolicy(c.OnBusy)
	if err != nil {
		return runloop.PolicyRestart
	}
	return p
}

func parseCase(s string) (filter.CaseMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return filter.CaseAuto, nil
	case "sensitive":
		return filter.CaseSensitive, nil
	case "insensitive":
		return filter.CaseInsensitive, nil
	default:
		return filter.CaseAuto, fmt.Errorf("%w: case must be auto, sensitive or insensitive, got %q", ErrInvalid, s)
	}
}
