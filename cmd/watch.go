package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/mode/watch"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

var (
	watchSession string
	watchPoll    = watch.DefaultPollInterval
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a session's workflow progress live",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSession, "session", "s", "", "session id (default: most recently updated)")
	watchCmd.Flags().DurationVar(&watchPoll, "poll", watch.DefaultPollInterval, "fallback refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	projectDir := workDir()
	cfg, cleanup, err := setup(projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	dir := cfg.ResolveStateDir(projectDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	catalog, err := workflow.NewCatalogWithConfig(cfg.Workflows)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := watch.NewWatcher(ctx, dir, watchPoll)
	store := session.NewStore(dir, session.NopLocker{})
	model := watch.New(store, catalog, sessionFlag(watchSession), watcher.Changes()).
		WithInspector(transcript.NewInspector(cfg.Transcript.TailBytes))

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running watch view: %w", err)
	}
	return nil
}
