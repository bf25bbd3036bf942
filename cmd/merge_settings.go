package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/settings"
)

var mergeSettingsDiff bool

var mergeSettingsCmd = &cobra.Command{
	Use:   "merge-settings <src> <dst>",
	Short: "Write agent settings with the container permissions policy",
	Long: `Copy every top-level field of the settings file <src> into <dst>, replacing the
"permissions" field with the container policy. A missing <src> is treated as empty.`,
	Example: "  stagehook merge-settings ~/.claude/settings.json /project/.claude/settings.json",
	Args:    cobra.ExactArgs(2),
	RunE:    runMergeSettings,
}

func init() {
	mergeSettingsCmd.Flags().BoolVar(&mergeSettingsDiff, "diff", false, "show the changes instead of writing them")
	rootCmd.AddCommand(mergeSettingsCmd)
}

func runMergeSettings(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]
	out := cmd.OutOrStdout()

	if mergeSettingsDiff {
		diff, err := settings.Diff(src, dst)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprint(out, diff)
		return nil
	}

	if err := settings.Merge(src, dst); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Successfully merged settings from %s to %s\n", src, dst)
	return nil
}
