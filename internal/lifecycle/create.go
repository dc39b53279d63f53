package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/telemetry"
)

// newBackOff returns the deterministic exponential schedule of the retry
// policy: no jitter, no interval cap and no elapsed-time limit.
func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.Retry.Base
	b.Multiplier = m.opts.Retry.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// CreateContexts creates a context for every listed site that has none. With
// concurrent set the creations run on the executor; otherwise one after the
// other. Failures are logged and do not stop the batch. Cancelling ctx stops
// new creations; CreateContexts then waits for those in flight and returns
// ctx.Err().
func (m *Manager) CreateContexts(ctx context.Context, concurrent bool) error {
	if m.closed.Load() {
		return ErrClosed
	}
	names, err := m.deps.Tenants.List(ctx)
	if err != nil {
		return err
	}
	m.logger.Infow("creating contexts", "sites", len(names), "concurrent", concurrent)

	if !concurrent || m.deps.Executor == nil {
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			m.createLogged(ctx, name)
		}
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := m.deps.Executor.Submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			m.createLogged(ctx, name)
		})
		if err != nil {
			wg.Done()
			if ctx.Err() == nil {
				m.logger.Errorw("cannot submit context creation", "site", name, "error", err)
			}
			break
		}
	}
	wg.Wait()
	return ctx.Err()
}

func (m *Manager) createLogged(ctx context.Context, name string) {
	if _, err := m.CreateWithRetry(ctx, name); err != nil && ctx.Err() == nil {
		m.logger.Errorw("context creation abandoned", "site", name, "error", err)
	}
}

// CreateWithRetry creates the context of name unless one is registered. In
// serving mode a failed attempt is retried following the retry policy; in
// preview mode the first failure is returned. Exhausting the attempts returns
// a *CreateError. A creation refused by the entitlement check returns nil
// without error.
func (m *Manager) CreateWithRetry(ctx context.Context, name string) (*site.Context, error) {
	attempts := m.opts.Retry.MaxAttempts
	if m.opts.Preview {
		attempts = 1
	}
	fallback := name == m.opts.FallbackSite

	b := m.newBackOff()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := b.NextBackOff()
			m.opts.Metrics.CreateRetried()
			m.emit(telemetry.KindCreateRetry, name, "", map[string]any{"attempt": i + 1, "wait_ms": wait.Milliseconds()})
			m.logger.Infow("retrying context creation", "site", name, "attempt", i+1, "wait", wait)
			if err := m.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		c, err := m.createOnce(ctx, name, fallback)
		if err == nil {
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		lastErr = err
		m.opts.Metrics.CreateFailed()
		m.emit(telemetry.KindCreateFailed, name, "", map[string]any{"attempt": i + 1, "error": err.Error()})
		m.logger.Warnw("context creation failed", "site", name, "attempt", i+1, "of", attempts, "error", err)
	}
	return nil, &CreateError{Site: name, Attempts: attempts, Err: lastErr}
}

// createOnce takes the site lock for a single attempt so other operations on
// the site can proceed between retries.
func (m *Manager) createOnce(ctx context.Context, name string, fallback bool) (*site.Context, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	unlock := m.locks.Lock(name)
	defer unlock()

	if c, ok := m.deps.Registry.Get(name); ok && c.State() != site.StateDestroyed {
		return c, nil
	}
	if !m.allowed(name, fallback) {
		return nil, nil
	}
	return m.createLocked(ctx, name, fallback)
}
