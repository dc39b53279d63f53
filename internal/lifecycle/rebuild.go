package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/craftercms/engine-sub000/internal/metrics"
	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/telemetry"
)

// RebuildContext builds a new context for name next to the registered one,
// registers it and only then destroys the old one, so the site always has a
// context. When the new context cannot be built the old one stays.
func (m *Manager) RebuildContext(ctx context.Context, name string, fallback bool) (*site.Context, error) {
	return m.rebuild(ctx, name, fallback, metrics.ReasonRequest)
}

func (m *Manager) rebuild(ctx context.Context, name string, fallback bool, reason string) (*site.Context, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	unlock := m.locks.Lock(name)
	defer unlock()

	old, hadOld := m.deps.Registry.Get(name)
	c, err := m.createLocked(ctx, name, fallback)
	if errors.Is(err, ErrClosed) {
		// The new context already displaced old in the registry.
		if hadOld {
			m.destroy(old)
		}
		return nil, err
	}
	if err != nil {
		m.opts.Metrics.CreateFailed()
		m.emit(telemetry.KindCreateFailed, name, "", map[string]any{"rebuild": true, "error": err.Error()})
		return nil, fmt.Errorf("lifecycle: rebuild %s: %w", name, err)
	}

	m.opts.Metrics.Rebuild(reason)
	data := map[string]any{"reason": reason}
	if hadOld {
		data["previous"] = old.ID()
		m.destroy(old)
	}
	m.emit(telemetry.KindContextRebuilt, name, c.ID(), data)
	return c, nil
}

// DestroyContext unregisters and destroys the context of name and stops its
// watcher. Destroying a site without a context is a no-op.
func (m *Manager) DestroyContext(name string) error {
	unlock := m.locks.Lock(name)
	defer unlock()

	m.stopWatcherLocked(name)
	c, ok := m.deps.Registry.Remove(name)
	if !ok {
		return nil
	}
	err := c.Destroy()
	m.opts.Metrics.ContextDestroyed()
	m.opts.Metrics.SetLive(m.deps.Registry.Len())
	m.emit(telemetry.KindContextDestroyed, name, c.ID(), nil)
	if err != nil {
		return fmt.Errorf("lifecycle: destroy %s: %w", name, err)
	}
	return nil
}

// StartContextRebuild rebuilds name on the executor. cb, when not nil,
// receives the outcome.
func (m *Manager) StartContextRebuild(name string, fallback bool, cb func(*site.Context, error)) error {
	return m.startRebuild(context.Background(), name, fallback, metrics.ReasonRequest, cb)
}

func (m *Manager) startRebuild(ctx context.Context, name string, fallback bool, reason string, cb func(*site.Context, error)) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.emit(telemetry.KindRebuildTriggered, name, "", map[string]any{"reason": reason})
	return m.submit(ctx, func() {
		c, err := m.rebuild(context.Background(), name, fallback, reason)
		if err != nil {
			m.logger.Errorw("rebuild failed", "site", name, "reason", reason, "error", err)
		}
		if cb != nil {
			cb(c, err)
		}
	})
}

// StartDestroyContext destroys name on the executor.
func (m *Manager) StartDestroyContext(name string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.submit(context.Background(), func() {
		if err := m.DestroyContext(name); err != nil {
			m.logger.Errorw("destroy failed", "site", name, "error", err)
		}
	})
}

// submit runs fn on the executor, or on its own goroutine without one.
func (m *Manager) submit(ctx context.Context, fn func()) error {
	if m.deps.Executor == nil {
		go fn()
		return nil
	}
	return m.deps.Executor.Submit(ctx, fn)
}
