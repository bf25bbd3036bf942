// Package config provides configuration types, defaults and loading for stagehook.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/stagehook/internal/paths"
)

// Hook output modes.
const (
	HookModeJSON   = "json"
	HookModeStderr = "stderr"
)

// Locking strategies for the session state store.
const (
	LockingAuto  = "auto"
	LockingFlock = "flock"
	LockingNone  = "none"
)

// Tracing exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds all configuration options for stagehook.
type Config struct {
	// HookMode selects how block decisions are emitted: "json" or "stderr".
	HookMode string `mapstructure:"hook_mode"`
	// StateDir overrides the project-local state directory (default <cwd>/.claude).
	StateDir   string           `mapstructure:"state_dir"`
	Locking    string           `mapstructure:"locking"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Workflows  WorkflowsConfig  `mapstructure:"workflows"`
	Log        LogConfig        `mapstructure:"log"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TranscriptConfig controls transcript inspection.
type TranscriptConfig struct {
	TailBytes int64 `mapstructure:"tail_bytes"`
}

// PolicyConfig holds the reinjection and grace thresholds.
type PolicyConfig struct {
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	ReinjectCooldown time.Duration `mapstructure:"reinject_cooldown"`
	MaxReinjects     int           `mapstructure:"max_reinjects"`
	StallThreshold   time.Duration `mapstructure:"stall_threshold"`
	// StallGate requires a stage to be idle for StallThreshold before reinjecting.
	StallGate bool `mapstructure:"stall_gate"`
}

// WorkflowsConfig selects which workflow definitions are registered beyond the built-ins.
type WorkflowsConfig struct {
	// Community lists triggers of embedded community workflows to enable.
	Community []string `mapstructure:"community"`
	// UserDir is scanned for *.yaml workflow definitions.
	UserDir string `mapstructure:"user_dir"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Stderr bool   `mapstructure:"stderr"`
}

// JournalConfig controls the SQLite decision journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig controls OpenTelemetry tracing of hook invocations.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	File     string `mapstructure:"file"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// Defaults returns a Config with the stock values.
func Defaults() Config {
	return Config{
		HookMode: HookModeJSON,
		Locking:  LockingAuto,
		Transcript: TranscriptConfig{
			TailBytes: 64 * 1024,
		},
		Policy: PolicyConfig{
			GracePeriod:      30 * time.Second,
			ReinjectCooldown: 2 * time.Second,
			MaxReinjects:     4,
			StallThreshold:   5 * time.Minute,
			StallGate:        false,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter: ExporterStdout,
		},
	}
}

// SetDefaults registers every key with v so environment overrides are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("hook_mode", d.HookMode)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("locking", d.Locking)
	v.SetDefault("transcript.tail_bytes", d.Transcript.TailBytes)
	v.SetDefault("policy.grace_period", d.Policy.GracePeriod)
	v.SetDefault("policy.reinject_cooldown", d.Policy.ReinjectCooldown)
	v.SetDefault("policy.max_reinjects", d.Policy.MaxReinjects)
	v.SetDefault("policy.stall_threshold", d.Policy.StallThreshold)
	v.SetDefault("policy.stall_gate", d.Policy.StallGate)
	v.SetDefault("workflows.community", []string{})
	v.SetDefault("workflows.user_dir", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("log.stderr", false)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
}

// LoadOptions tells Load where to look for config files.
type LoadOptions struct {
	// ProjectDir is the hook's working directory.
	ProjectDir string
	// ConfigFile, when set, is the only file read and must exist.
	ConfigFile string
	// UserConfigDir overrides the per-user config directory (tests).
	UserConfigDir string
}

// Load reads configuration from defaults, the user and project config files, and the
// environment (STAGEHOOK_*, plus the legacy CC_HOOK_MODE), in increasing precedence.
// Flags bound to v by the caller take precedence over all of them.
func Load(v *viper.Viper, opts LoadOptions) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("STAGEHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("hook_mode", "STAGEHOOK_HOOK_MODE", "CC_HOOK_MODE"); err != nil {
		return Config{}, fmt.Errorf("binding hook mode env: %w", err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", opts.ConfigFile, err)
		}
	} else {
		userDir := opts.UserConfigDir
		if userDir == "" {
			userDir = paths.UserConfigDir()
		}
		candidates := []string{
			filepath.Join(userDir, "config.yaml"),
			paths.ProjectConfigPath(opts.ProjectDir),
		}
		for _, path := range candidates {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.HookMode = strings.ToLower(strings.TrimSpace(cfg.HookMode))
	cfg.Locking = strings.ToLower(strings.TrimSpace(cfg.Locking))
	cfg.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Tracing.Exporter))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error

	switch c.HookMode {
	case HookModeJSON, HookModeStderr:
	default:
		errs = append(errs, fmt.Errorf("hook_mode must be %q or %q, got %q", HookModeJSON, HookModeStderr, c.HookMode))
	}
	switch c.Locking {
	case LockingAuto, LockingFlock, LockingNone:
	default:
		errs = append(errs, fmt.Errorf("locking must be auto, flock or none, got %q", c.Locking))
	}
	if c.Transcript.TailBytes <= 0 {
		errs = append(errs, fmt.Errorf("transcript.tail_bytes must be positive: %d", c.Transcript.TailBytes))
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case ExporterStdout:
		case ExporterOTLP:
			if c.Tracing.Endpoint == "" {
				errs = append(errs, errors.New("tracing.endpoint is required for the otlp exporter"))
			}
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
		}
	}
	return errors.Join(errs...)
}

// ResolveStateDir returns the effective state directory for projectDir.
func (c Config) ResolveStateDir(projectDir string) string {
	if c.StateDir == "" {
		return paths.ResolveStateDir(projectDir)
	}
	if filepath.IsAbs(c.StateDir) {
		return filepath.Clean(c.StateDir)
	}
	return filepath.Join(projectDir, c.StateDir)
}

// LogFile returns the configured log file or the default under stateDir.
func (c Config) LogFile(stateDir string) string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(stateDir, "stagehook.log")
}

// JournalPath returns the configured journal database path or the default under stateDir.
func (c Config) JournalPath(stateDir string) string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(stateDir, "stagehook.db")
}

// TraceFile returns the configured stdout-exporter file or the default under stateDir.
func (c Config) TraceFile(stateDir string) string {
	if c.Tracing.File != "" {
		return c.Tracing.File
	}
	return filepath.Join(stateDir, "traces.jsonl")
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# stagehook configuration

# How block decisions are emitted to the agent harness:
#   json   - {"decision":"block","reason":...} on stdout (default)
#   stderr - reason on stderr with exit status 2
# The CC_HOOK_MODE environment variable overrides this.
hook_mode: json

# Where session records live (default: <project>/.claude)
# state_dir: .claude

# Session lock strategy: auto, flock, none
locking: auto

transcript:
  # Only this many trailing bytes of the transcript are searched for stage markers
  tail_bytes: 65536

policy:
  grace_period: 30s       # do nothing while the transcript is empty and the stage is young
  reinject_cooldown: 2s   # minimum time between re-sends of a stage prompt
  max_reinjects: 4        # re-sends allowed per stage
  stall_threshold: 5m
  stall_gate: false       # when true, only re-send after the stage has been idle for stall_threshold

workflows:
  # Embedded community workflows to enable, by trigger
  # community: ["--review"]
  # Directory of *.yaml workflow definitions
  # user_dir: ~/.config/stagehook/workflows

log:
  level: info
  # file: .claude/stagehook.log
  stderr: false

journal:
  # Record every decision in a SQLite database (see 'stagehook history')
  enabled: false
  # path: .claude/stagehook.db

tracing:
  enabled: false
  exporter: stdout        # stdout or otlp
  # file: .claude/traces.jsonl
  # endpoint: localhost:4317
  # insecure: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
