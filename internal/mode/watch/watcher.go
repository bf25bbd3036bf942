package watch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/stagehook/internal/log"
)

// DefaultPollInterval is the safety-net refresh when file events are missed.
const DefaultPollInterval = 5 * time.Second

// Watcher coalesces file events in the state directory into change notifications.
type Watcher struct {
	changes chan struct{}
}

// NewWatcher watches dir until ctx is done. Only state record files trigger a change;
// the poll interval fires regardless so a missed event is eventually picked up. When
// fsnotify is unavailable the watcher falls back to polling alone.
func NewWatcher(ctx context.Context, dir string, poll time.Duration) *Watcher {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	w := &Watcher{changes: make(chan struct{}, 1)}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fsw.Add(dir); err != nil {
			_ = fsw.Close()
		}
	}
	if err != nil {
		log.Warn(log.CatUI, "file watching unavailable, polling", "dir", dir, "error", err)
		go w.poll(ctx, poll, nil)
		return w
	}
	go w.poll(ctx, poll, fsw)
	return w
}

// Changes delivers at most one pending notification at a time.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) poll(ctx context.Context, interval time.Duration, fsw *fsnotify.Watcher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fsw != nil {
		defer func() { _ = fsw.Close() }()
		events = fsw.Events
		errs = fsw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if isStateFile(ev.Name) {
				w.notify()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn(log.CatUI, "file watcher error", "error", err)
		case <-ticker.C:
			w.notify()
		}
	}
}

func isStateFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, "workflow_state_") && strings.HasSuffix(base, ".json")
}
