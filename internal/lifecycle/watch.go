package lifecycle

import (
	"context"
	"path/filepath"

	"github.com/craftercms/engine-sub000/internal/metrics"
	"github.com/craftercms/engine-sub000/internal/telemetry"
	"github.com/craftercms/engine-sub000/internal/watch"
)

// replaceWatcherLocked closes the watcher of name, if any, and starts a new
// one. The caller holds the site lock.
func (m *Manager) replaceWatcherLocked(name string, fallback bool) {
	m.stopWatcherLocked(name)

	root := filepath.Join(m.opts.SitesRoot, name)
	w, err := watch.New(name, root, m.opts.Watch, func(ctx context.Context) {
		m.emit(telemetry.KindChangeDetected, name, "", nil)
		if err := m.startRebuild(ctx, name, fallback, metrics.ReasonChange, nil); err != nil && ctx.Err() == nil {
			m.logger.Warnw("cannot schedule rebuild", "site", name, "error", err)
		}
	}, m.logger.With("component", "watch"))
	if err != nil {
		m.logger.Warnw("cannot create watcher", "site", name, "error", err)
		return
	}
	if err := w.Start(); err != nil {
		m.logger.Warnw("cannot start watcher", "site", name, "error", err)
		return
	}

	m.watchMu.Lock()
	m.watchers[name] = w
	m.watchMu.Unlock()
}

// stopWatcherLocked closes the watcher of name. The caller holds the site lock.
func (m *Manager) stopWatcherLocked(name string) {
	m.watchMu.Lock()
	w, ok := m.watchers[name]
	delete(m.watchers, name)
	m.watchMu.Unlock()
	if ok {
		w.Close()
	}
}

// Watching reports whether name has an active change watcher.
func (m *Manager) Watching(name string) bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	_, ok := m.watchers[name]
	return ok
}
