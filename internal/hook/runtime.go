package hook

import (
	"fmt"
	"io"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/infrastructure/sqlite"
	"github.com/zjrosen/stagehook/internal/log"
	"github.com/zjrosen/stagehook/internal/orchestration/controlplane"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

// Options configures New.
type Options struct {
	Config     config.Config
	ProjectDir string
	Stdout     io.Writer
	Stderr     io.Writer
	// Clock overrides the orchestrator clock (for testing).
	Clock controlplane.Clock
}

// Runtime bundles a Dispatcher with the resources it owns.
type Runtime struct {
	*Dispatcher
	Store *session.Store
	db    *sqlite.DB
}

// New assembles the catalog, store, orchestrator and sink described by opts.Config.
// A journal that fails to open is logged and skipped.
func New(opts Options) (*Runtime, error) {
	cfg := opts.Config

	sink, err := NewSink(cfg.HookMode, opts.Stdout, opts.Stderr)
	if err != nil {
		return nil, err
	}

	catalog, err := workflow.NewCatalogWithConfig(cfg.Workflows)
	if err != nil {
		return nil, fmt.Errorf("loading workflows: %w", err)
	}

	stateDir := cfg.ResolveStateDir(opts.ProjectDir)
	store := session.NewStore(stateDir, session.SelectLocker(cfg.Locking))

	orch, err := controlplane.New(controlplane.Config{
		Catalog:   catalog,
		Store:     store,
		Inspector: transcript.NewInspector(cfg.Transcript.TailBytes),
		Policy:    controlplane.PolicyFromConfig(cfg.Policy),
		Clock:     opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	rt := &Runtime{Store: store}
	var recorder Recorder
	if cfg.Journal.Enabled {
		db, err := sqlite.NewDB(cfg.JournalPath(stateDir))
		if err != nil {
			log.ErrorErr(log.CatDB, "opening decision journal", err)
		} else {
			rt.db = db
			recorder = db.Journal()
		}
	}

	rt.Dispatcher = NewDispatcher(orch, sink, recorder)
	return rt, nil
}

// Close releases the journal database, if one was opened.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
