package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
	"github.com/zjrosen/stagehook/internal/ui/statusview"
)

var (
	statusAll     bool
	statusSession string
	statusWidth   int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active workflow of a session",
	Long:  `Print the persisted workflow state of a session. Without --session the most recently updated session is shown.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "show every session with an active workflow")
	statusCmd.Flags().StringVarP(&statusSession, "session", "s", "", "session id")
	statusCmd.Flags().IntVarP(&statusWidth, "width", "w", 72, "box width")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	projectDir := workDir()
	cfg, cleanup, err := setup(projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	store := session.NewStore(cfg.ResolveStateDir(projectDir), session.SelectLocker(cfg.Locking))
	catalog, err := workflow.NewCatalogWithConfig(cfg.Workflows)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	var states []*session.State
	switch {
	case statusSession != "":
		if st, ok := store.Load(sessionFlag(statusSession)); ok {
			states = append(states, st)
		}
	default:
		all, err := store.List()
		if err != nil {
			return err
		}
		states = all
		if !statusAll && len(states) > 1 {
			states = states[:1]
		}
	}

	out := cmd.OutOrStdout()
	if len(states) == 0 {
		_, _ = fmt.Fprintln(out, statusview.Render(nil, statusview.Options{Width: statusWidth}))
		return nil
	}
	ins := transcript.NewInspector(cfg.Transcript.TailBytes)
	for _, st := range states {
		def, _ := catalog.Get(st.WorkflowType)
		_, _ = fmt.Fprintln(out, statusview.Render(st, statusview.Options{
			Width:      statusWidth,
			Definition: def,
			Marker:     statusview.CheckMarker(ins, st),
		}))
	}
	return nil
}

// sessionFlag maps a --session value to the id the hook stores records under. Values
// that are not safe file name parts are hashed, so they never leave the state dir.
func sessionFlag(value string) string {
	if value == "" {
		return ""
	}
	return session.ResolveID(value, "", "")
}
