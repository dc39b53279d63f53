package site

import (
	"context"
	"fmt"
)

// SubmitMaintenance queues task behind every task submitted before it. The
// returned channel receives the task's result once. Tasks pending when the
// context is destroyed receive ErrQueueClosed. Submission blocks while the
// queue is full, so a task must not wait on a submission to its own context;
// it may submit and return without reading the result.
func (c *Context) SubmitMaintenance(name string, task Task) (<-chan error, error) {
	if c.State() == StateDestroyed {
		return nil, fmt.Errorf("site: submit %s to %s: %w", name, c.name, ErrDestroyed)
	}
	done, err := c.queue.submit(name, task)
	if err != nil {
		return nil, fmt.Errorf("site: submit %s to %s: %w", name, c.name, err)
	}
	return done, nil
}

// ClearCache queues a flush of the store cache.
func (c *Context) ClearCache() (<-chan error, error) {
	return c.SubmitMaintenance("clear-cache", func(context.Context) error {
		if c.res.Store != nil {
			c.res.Store.ClearCache()
		}
		return nil
	})
}

// WarmCache queues a store cache warm-up.
func (c *Context) WarmCache() (<-chan error, error) {
	return c.SubmitMaintenance("warm-cache", func(ctx context.Context) error {
		if c.res.Store == nil {
			return nil
		}
		return c.res.Store.WarmCache(ctx)
	})
}

// RebuildSchema queues a rebuild of the store index.
func (c *Context) RebuildSchema() (<-chan error, error) {
	return c.SubmitMaintenance("rebuild-schema", func(ctx context.Context) error {
		if c.res.Store == nil {
			return nil
		}
		return c.res.Store.BuildIndex(ctx)
	})
}

// EnableSandbox turns on the script sandbox.
func (c *Context) EnableSandbox() {
	if c.res.Scripts != nil {
		c.res.Scripts.SetSandbox(true)
	}
}

// DisableSandbox turns off the script sandbox.
func (c *Context) DisableSandbox() {
	if c.res.Scripts != nil {
		c.res.Scripts.SetSandbox(false)
	}
}
