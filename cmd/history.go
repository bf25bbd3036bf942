package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/infrastructure/sqlite"
	"github.com/zjrosen/stagehook/internal/ui/styles"
)

var (
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled hook decisions",
	Long:  `List decisions recorded in the decision journal, newest first. The journal is written only when journal.enabled is set.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "only show this session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", sqlite.DefaultListLimit, "maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	projectDir := workDir()
	cfg, cleanup, err := setup(projectDir)
	if err != nil {
		return err
	}
	defer cleanup()

	path := cfg.JournalPath(cfg.ResolveStateDir(projectDir))
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if !cfg.Journal.Enabled {
			return errors.New("the decision journal is disabled; set journal.enabled: true")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded yet.")
		return nil
	}

	db, err := sqlite.NewDB(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var decisions []*sqlite.Decision
	if historySession != "" {
		decisions, err = db.Journal().ListBySession(cmd.Context(), historySession, historyLimit)
	} else {
		decisions, err = db.Journal().ListRecent(cmd.Context(), historyLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(decisions) == 0 {
		_, _ = fmt.Fprintln(out, "No decisions recorded yet.")
		return nil
	}
	_, _ = fmt.Fprintln(out, decisionTable(decisions))
	return nil
}

func decisionTable(decisions []*sqlite.Decision) string {
	header := lipgloss.NewStyle().Foreground(styles.TitleColor).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
		Headers("TIME", "SESSION", "EVENT", "WORKFLOW", "STAGE", "ACTION", "DETAIL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, d := range decisions {
		t.Row(
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			styles.Truncate(d.SessionID, 14),
			d.Event,
			d.Workflow,
			strconv.Itoa(d.StageIndex+1),
			d.Action,
			d.Detail,
		)
	}
	return t.Render()
}
