// Package lifecycle owns the live site contexts: it creates them on demand
// or in bulk, retries failed creations, rebuilds them when content changes
// and destroys them. Operations on one site are serialized by a per-site
// lock; different sites never contend.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/entitlement"
	"github.com/craftercms/engine-sub000/internal/keylock"
	"github.com/craftercms/engine-sub000/internal/metrics"
	"github.com/craftercms/engine-sub000/internal/registry"
	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/telemetry"
	"github.com/craftercms/engine-sub000/internal/watch"
)

// Factory builds site contexts.
type Factory interface {
	CreateContext(ctx context.Context, name string) (*site.Context, error)
	CreateFallbackContext(ctx context.Context, name string) (*site.Context, error)
}

// TenantLister returns the authoritative list of site names.
type TenantLister interface {
	List(ctx context.Context) ([]string, error)
}

// EntitlementValidator vetoes the creation of another resource of a kind.
type EntitlementValidator interface {
	Validate(kind string, count int) error
}

// Executor runs functions on a bounded pool.
type Executor interface {
	Submit(ctx context.Context, fn func()) error
}

// RetryPolicy is the creation backoff: the wait before retry i (zero based)
// is Base * Multiplier^i, for at most MaxAttempts attempts in total.
type RetryPolicy struct {
	Base        time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Deps are the collaborators of a Manager. Entitlement may be nil.
type Deps struct {
	Factory     Factory
	Tenants     TenantLister
	Entitlement EntitlementValidator
	Executor    Executor
	Registry    *registry.Registry
}

// Options configure a Manager.
type Options struct {
	// Preview enables change watchers and disables creation retries.
	Preview bool
	// SitesRoot is watched in preview mode, one sub-folder per site.
	SitesRoot    string
	DefaultSite  string
	FallbackSite string
	Retry        RetryPolicy
	Watch        watch.Options
	SyncInterval time.Duration

	Logger    *zap.SugaredLogger
	Telemetry *telemetry.Emitter
	Metrics   *metrics.Metrics
}

// Manager coordinates the lifecycle of every site context.
type Manager struct {
	deps   Deps
	opts   Options
	locks  *keylock.KeyLock
	logger *zap.SugaredLogger

	// sleep waits between creation attempts.
	sleep func(ctx context.Context, d time.Duration) error

	watchMu  sync.Mutex
	watchers map[string]*watch.Watcher

	closed atomic.Bool
}

// New returns a manager. The registry is created when deps.Registry is nil.
func New(deps Deps, opts Options) *Manager {
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Retry.Multiplier < 1 {
		opts.Retry.Multiplier = 1
	}
	return &Manager{
		deps:     deps,
		opts:     opts,
		locks:    keylock.New(),
		logger:   opts.Logger,
		sleep:    sleepCtx,
		watchers: make(map[string]*watch.Watcher),
	}
}

// Registry returns the registry the manager maintains.
func (m *Manager) Registry() *registry.Registry { return m.deps.Registry }

// GetContext returns the valid context of name, creating it when absent.
// A registered context that is no longer valid is destroyed and nil is
// returned so the next call creates a fresh one. Creation of a new site the
// entitlement check refuses also returns nil without error. fallback builds
// the context as the fallback context.
func (m *Manager) GetContext(ctx context.Context, name string, fallback bool) (*site.Context, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if c, ok := m.deps.Registry.Get(name); ok {
		valid, err := c.IsValid(ctx)
		if err != nil {
			return nil, err
		}
		if valid {
			return c, nil
		}
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	if c, ok := m.deps.Registry.Get(name); ok {
		valid, err := c.IsValid(ctx)
		if err != nil {
			return nil, err
		}
		if valid {
			return c, nil
		}
		m.discardLocked(name, c, metrics.ReasonInvalid)
		return nil, nil
	}

	if !m.allowed(name, fallback) {
		return nil, nil
	}
	return m.createLocked(ctx, name, fallback)
}

// allowed runs the entitlement check for a brand-new site. The default and
// fallback sites are always allowed.
func (m *Manager) allowed(name string, fallback bool) bool {
	if m.deps.Entitlement == nil || fallback || name == m.opts.DefaultSite || name == m.opts.FallbackSite {
		return true
	}
	count := 1
	for _, c := range m.deps.Registry.List() {
		if !c.IsFallback() {
			count++
		}
	}
	if err := m.deps.Entitlement.Validate(entitlement.KindSite, count); err != nil {
		m.logger.Warnw("context creation denied", "site", name, "error", err)
		m.opts.Metrics.CreateDenied()
		m.emit(telemetry.KindCreateDenied, name, "", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// createLocked builds, initializes and registers a context. The caller holds
// the site lock. A context that fails to initialize is destroyed and never
// registered.
func (m *Manager) createLocked(ctx context.Context, name string, fallback bool) (*site.Context, error) {
	start := time.Now()
	var (
		c   *site.Context
		err error
	)
	if fallback {
		c, err = m.deps.Factory.CreateFallbackContext(ctx, name)
	} else {
		c, err = m.deps.Factory.CreateContext(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	m.emit(telemetry.KindContextCreated, name, c.ID(), map[string]any{"fallback": fallback})

	if err := c.Init(ctx, true); err != nil {
		// Init failures destroy the context already; timeouts and
		// cancellation leave it to us.
		if derr := c.Destroy(); derr != nil {
			m.logger.Warnw("release after failed init", "site", name, "error", derr)
		}
		return nil, err
	}

	m.deps.Registry.Put(c)
	// Close sets closed before listing the registry, so either it sees c or
	// we see closed here.
	if m.closed.Load() {
		m.deps.Registry.RemoveIf(name, c)
		m.destroy(c)
		return nil, ErrClosed
	}
	m.opts.Metrics.ContextCreated(time.Since(start))
	m.opts.Metrics.SetLive(m.deps.Registry.Len())
	m.emit(telemetry.KindContextReady, name, c.ID(), map[string]any{"elapsed_ms": time.Since(start).Milliseconds()})
	m.logger.Infow("context ready", "site", name, "context", c.ID(), "elapsed", time.Since(start))

	if m.opts.Preview {
		m.replaceWatcherLocked(name, fallback)
	}
	return c, nil
}

// discardLocked unregisters and destroys c. The caller holds the site lock.
func (m *Manager) discardLocked(name string, c *site.Context, reason string) {
	m.deps.Registry.RemoveIf(name, c)
	m.emit(telemetry.KindContextInvalid, name, c.ID(), map[string]any{"reason": reason})
	m.logger.Infow("discarding context", "site", name, "context", c.ID(), "reason", reason)
	m.destroy(c)
}

// destroy tears c down and records it.
func (m *Manager) destroy(c *site.Context) {
	if err := c.Destroy(); err != nil {
		m.logger.Warnw("context destroyed with errors", "site", c.Name(), "context", c.ID(), "error", err)
	}
	m.opts.Metrics.ContextDestroyed()
	m.opts.Metrics.SetLive(m.deps.Registry.Len())
	m.emit(telemetry.KindContextDestroyed, c.Name(), c.ID(), nil)
}

// ListContexts returns the registered contexts ordered by site name.
func (m *Manager) ListContexts() []*site.Context {
	return m.deps.Registry.List()
}

// HasValidContext reports whether name has a registered, valid context.
func (m *Manager) HasValidContext(ctx context.Context, name string) bool {
	c, ok := m.deps.Registry.Get(name)
	if !ok {
		return false
	}
	valid, err := c.IsValid(ctx)
	return err == nil && valid
}

// Close stops every watcher and destroys every registered context. A
// creation still in flight discards its context and returns ErrClosed.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.watchMu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*watch.Watcher)
	m.watchMu.Unlock()
	for _, w := range watchers {
		w.Close()
	}

	for _, name := range m.deps.Registry.Names() {
		if err := m.DestroyContext(name); err != nil {
			m.logger.Warnw("destroy on close", "site", name, "error", err)
		}
	}
}

func (m *Manager) emit(kind, name, id string, data any) {
	if err := m.opts.Telemetry.Emit(telemetry.Event{Kind: kind, Site: name, ContextID: id, Data: data}); err != nil {
		m.logger.Debugw("telemetry emit failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
