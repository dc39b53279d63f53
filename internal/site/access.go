package site

import (
	"context"
	"fmt"
	"sync/atomic"
)

type accessKey struct{ c *Context }

type currentKey struct{}

// accessHold is the marker Enter stores in the request context. Only the
// outermost hold owns a share of the lock.
type accessHold struct {
	owner    bool
	released atomic.Bool
}

// WithSite returns ctx carrying c as the current site.
func WithSite(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, currentKey{}, c)
}

// FromContext returns the current site carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(currentKey{}).(*Context)
	return c, ok && c != nil
}

// Enter acquires a shared hold on c for the duration of a request and
// returns the context to pass along with it. Entering again with the returned
// context is a no-op, as is the matching Exit. It blocks while a Destroy is
// draining accessors, and fails with ErrDestroyed once c is destroyed.
func (c *Context) Enter(ctx context.Context) (context.Context, error) {
	if h, ok := ctx.Value(accessKey{c}).(*accessHold); ok && !h.released.Load() {
		return context.WithValue(ctx, accessKey{c}, &accessHold{}), nil
	}
	if c.State() == StateDestroyed {
		return ctx, fmt.Errorf("site: enter %s: %w", c.name, ErrDestroyed)
	}
	if err := c.access.Acquire(ctx, 1); err != nil {
		return ctx, fmt.Errorf("site: enter %s: %w", c.name, err)
	}
	if c.State() == StateDestroyed {
		c.access.Release(1)
		return ctx, fmt.Errorf("site: enter %s: %w", c.name, ErrDestroyed)
	}
	c.accessors.Add(1)

	ctx = context.WithValue(ctx, accessKey{c}, &accessHold{owner: true})
	return WithSite(ctx, c), nil
}

// Exit releases the hold taken by the Enter that returned ctx. It is a no-op
// for nested holds, for contexts that never entered c, and when called twice.
func (c *Context) Exit(ctx context.Context) {
	h, ok := ctx.Value(accessKey{c}).(*accessHold)
	if !ok || !h.owner || !h.released.CompareAndSwap(false, true) {
		return
	}
	c.accessors.Add(-1)
	c.access.Release(1)
}

// Accessors returns the number of outstanding Enter holds.
func (c *Context) Accessors() int {
	return int(c.accessors.Load())
}
