package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

var (
	workflowsShow  string
	workflowsStyle string
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List available workflows",
	Long:  `Display all workflows a trigger can start, including built-in, enabled community and user-defined workflows.`,
	Args:  cobra.NoArgs,
	RunE:  runWorkflows,
}

func init() {
	workflowsCmd.Flags().StringVar(&workflowsShow, "show", "", "render the stages of the workflow with this trigger")
	workflowsCmd.Flags().StringVar(&workflowsStyle, "style", "auto", "glamour style for --show (auto, dark, light, notty)")
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflows(cmd *cobra.Command, _ []string) error {
	cfg, cleanup, err := setup(workDir())
	if err != nil {
		return err
	}
	defer cleanup()

	catalog, err := workflow.NewCatalogWithConfig(cfg.Workflows)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	out := cmd.OutOrStdout()
	if workflowsShow != "" {
		def, ok := catalog.Get(workflowsShow)
		if !ok {
			return fmt.Errorf("no workflow with trigger %q", workflowsShow)
		}
		rendered, err := renderDefinition(def, workflowsStyle)
		if err != nil {
			return err
		}
		_, _ = io.WriteString(out, rendered)
		return nil
	}

	printGroup(out, "Built-in Workflows:", catalog.ListBySource(workflow.SourceBuiltIn), "  (none)")
	_, _ = fmt.Fprintln(out)
	printGroup(out, "Community Workflows:", catalog.ListBySource(workflow.SourceCommunity),
		"  (none enabled, configure in workflows.community)")
	_, _ = fmt.Fprintln(out)

	header := "User Workflows:"
	if cfg.Workflows.UserDir != "" {
		header = fmt.Sprintf("User Workflows (%s):", cfg.Workflows.UserDir)
	}
	printGroup(out, header, catalog.ListBySource(workflow.SourceUser), "  (none)")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Start a workflow by including its trigger in a prompt; see --show <trigger> for its stages.")
	return nil
}

func printGroup(w io.Writer, header string, defs []*workflow.Definition, empty string) {
	_, _ = fmt.Fprintln(w, header)
	if len(defs) == 0 {
		_, _ = fmt.Fprintln(w, empty)
		return
	}
	width := maxTriggerLen(defs)
	for _, def := range defs {
		desc := def.Description
		if desc == "" {
			desc = def.DisplayName()
		}
		_, _ = fmt.Fprintf(w, "  %-*s  %2d stages  %s\n", width, def.Trigger, def.StageCount(), desc)
	}
}

// maxTriggerLen returns the length of the longest trigger in the slice.
func maxTriggerLen(defs []*workflow.Definition) int {
	maxLen := 0
	for _, def := range defs {
		maxLen = max(maxLen, len(def.Trigger))
	}
	return maxLen
}

// definitionMarkdown describes a workflow's stages as markdown.
func definitionMarkdown(def *workflow.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", def.DisplayName())
	fmt.Fprintf(&b, "Trigger: `%s` · Source: %s · %d stages\n\n", def.Trigger, def.Source, def.StageCount())
	if def.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", def.Description)
	}
	for i, st := range def.Stages {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, st.Name)
		fmt.Fprintf(&b, "*%s*\n\n", def.Phase(i))
		fmt.Fprintf(&b, "```\n%s\n```\n\n", def.Prompt(st.Name))
	}
	return b.String()
}

func renderDefinition(def *workflow.Definition, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(definitionMarkdown(def))
	if err != nil {
		return "", fmt.Errorf("rendering workflow: %w", err)
	}
	return out, nil
}
