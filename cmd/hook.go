package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/hook"
	"github.com/zjrosen/stagehook/internal/log"
	"github.com/zjrosen/stagehook/internal/tracing"
)

var hookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "Handle one agent hook event",
	Long: fmt.Sprintf(`Handle one hook event. The event payload is read as JSON from stdin.

Recognized events: %s.

Decisions are written according to hook_mode: as a JSON object on stdout ("json"), or as
text on stderr with exit status 2 ("stderr").`, strings.Join(hook.EventNames, ", ")),
	Args: cobra.MaximumNArgs(1),
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	event := ""
	if len(args) > 0 {
		event = args[0]
	}
	stderr := cmd.ErrOrStderr()

	if _, err := hook.ParseEvent(event); err != nil {
		fmt.Fprintln(stderr, "stagehook:", err)
		return &exitCodeError{code: hook.ExitUnknownEvent}
	}

	payload := hook.ParsePayload(cmd.InOrStdin())
	projectDir := payload.WorkDir()

	// A bad config file must not wedge the agent; fall back to the defaults.
	cfg, cleanup, err := setup(projectDir)
	if err != nil {
		fmt.Fprintln(stderr, "stagehook: using default configuration:", err)
		cfg = config.Defaults()
		cfg.StateDir = stateDir
		cleanup = startLogging(cfg, projectDir)
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing, cfg.TraceFile(cfg.ResolveStateDir(projectDir)))
	if err != nil {
		log.ErrorErr(log.CatHook, "tracing disabled", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.ErrorErr(log.CatHook, "flushing traces", err)
		}
	}()

	rt, err := hook.New(hook.Options{
		Config:     cfg,
		ProjectDir: projectDir,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     stderr,
	})
	if err != nil {
		log.ErrorErr(log.CatHook, "hook setup failed, allowing", err, "event", event)
		fmt.Fprintln(stderr, "stagehook:", err)
		return nil
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.ErrorErr(log.CatDB, "closing journal", err)
		}
	}()

	if code := rt.Dispatch(ctx, event, payload); code != hook.ExitOK {
		return &exitCodeError{code: code}
	}
	return nil
}
