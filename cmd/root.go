// Package cmd implements the stagehook command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/log"
)

var (
	cfgFile  string
	stateDir string
	debug    bool

	// userConfigDir overrides the per-user config directory (tests).
	userConfigDir string
)

var rootCmd = &cobra.Command{
	Use:   "stagehook",
	Short: "Drive an agent through multi-stage workflows from its hook events",
	Long: `stagehook is installed as the agent's hook command. A trigger in a submitted prompt
starts a staged workflow; every time the agent stops, stagehook checks the transcript for
the current stage's marker and either advances to the next stage, re-sends the current
one, or lets the agent finish.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory holding session records (default: <project>/.claude)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

// exitCodeError carries a process exit status out of a command without printing.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return 1
}

// loadConfig loads configuration for projectDir with the global flags applied.
func loadConfig(projectDir string) (config.Config, error) {
	v := viper.New()
	if stateDir != "" {
		v.Set("state_dir", stateDir)
	}
	if debug {
		v.Set("log.level", "debug")
	}
	return config.Load(v, config.LoadOptions{
		ProjectDir:    projectDir,
		ConfigFile:    cfgFile,
		UserConfigDir: userConfigDir,
	})
}

// setup loads configuration for projectDir and starts logging. The returned cleanup
// must be called before the command returns.
func setup(projectDir string) (config.Config, func(), error) {
	cfg, err := loadConfig(projectDir)
	if err != nil {
		return config.Config{}, func() {}, err
	}
	cleanup := startLogging(cfg, projectDir)
	return cfg, cleanup, nil
}

func startLogging(cfg config.Config, projectDir string) func() {
	closeLog, err := log.Init(log.Options{
		Level:  cfg.Log.Level,
		File:   cfg.LogFile(cfg.ResolveStateDir(projectDir)),
		Stderr: cfg.Log.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "stagehook: logging disabled:", err)
		return func() {}
	}
	log.Debug(log.CatConfig, "configuration loaded", "project", projectDir, "hook_mode", cfg.HookMode)
	return func() { _ = closeLog() }
}

// workDir returns the current directory, or "." when it cannot be determined.
func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
