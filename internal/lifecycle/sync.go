package lifecycle

import (
	"context"
	"time"

	"github.com/craftercms/engine-sub000/internal/telemetry"
)

// SyncContexts reconciles the registry with the tenant list: contexts of
// sites no longer listed are destroyed and listed sites without a context
// are created. The fallback context is left alone.
func (m *Manager) SyncContexts(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	names, err := m.deps.Tenants.List(ctx)
	if err != nil {
		return err
	}
	listed := make(map[string]bool, len(names))
	for _, n := range names {
		listed[n] = true
	}

	destroyed := 0
	for _, c := range m.deps.Registry.List() {
		if c.IsFallback() || listed[c.Name()] {
			continue
		}
		if err := m.DestroyContext(c.Name()); err != nil {
			m.logger.Warnw("sync destroy", "site", c.Name(), "error", err)
		}
		destroyed++
	}

	created := 0
	for _, n := range names {
		if ctx.Err() != nil {
			break
		}
		if _, ok := m.deps.Registry.Get(n); ok {
			continue
		}
		c, err := m.CreateWithRetry(ctx, n)
		switch {
		case err != nil && ctx.Err() == nil:
			m.logger.Errorw("sync create", "site", n, "error", err)
		case c != nil:
			created++
		}
	}

	m.emit(telemetry.KindSyncDone, "", "", map[string]any{"created": created, "destroyed": destroyed})
	m.logger.Infow("contexts synced", "created", created, "destroyed", destroyed, "live", m.deps.Registry.Len())
	return ctx.Err()
}

// RunSync calls SyncContexts every SyncInterval until ctx ends.
func (m *Manager) RunSync(ctx context.Context) {
	if m.opts.SyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SyncContexts(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warnw("sync failed", "error", err)
			}
		}
	}
}
