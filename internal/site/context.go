// Package site implements the per-site runtime context: the bundle of
// resources a site serves requests with, its lifecycle state machine, the
// reader/writer lock that keeps destroy from pulling resources out from under
// in-flight requests, and the single-worker maintenance queue.
package site

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Context is the runtime of one site.
type Context struct {
	name      string
	id        string
	fallback  bool
	createdAt time.Time

	res    Resources
	opts   Options
	logger *zap.SugaredLogger

	machine *fsm.FSM

	// access is the reader/writer lock: Enter takes weight 1, Destroy takes
	// every slot.
	access    *semaphore.Weighted
	accessors atomic.Int64

	life   context.Context
	cancel context.CancelFunc
	queue  *queue

	initStarted atomic.Bool
	initDone    chan struct{}
	initOnce    sync.Once
	initMu      sync.Mutex
	initErr     error
}

// New returns a context in StateInitializing that owns res. Call Init to
// make it ready.
func New(name string, fallback bool, res Resources, opts Options) *Context {
	opts = opts.withDefaults()
	id := uuid.NewString()
	logger := opts.Logger.With("site", name, "context", id)

	c := &Context{
		name:      name,
		id:        id,
		fallback:  fallback,
		createdAt: time.Now(),
		res:       res,
		opts:      opts,
		logger:    logger,
		machine:   newMachine(logger),
		access:    semaphore.NewWeighted(int64(opts.MaxAccessors)),
		initDone:  make(chan struct{}),
	}
	c.life, c.cancel = context.WithCancel(WithSite(context.Background(), c))
	c.queue = newQueue(c.life, opts.QueueSize, logger)
	return c
}

// Name returns the site name.
func (c *Context) Name() string { return c.name }

// ID returns the unique id of this context instance.
func (c *Context) ID() string { return c.id }

// IsFallback reports whether this is the fallback context.
func (c *Context) IsFallback() bool { return c.fallback }

// CreatedAt returns when the context was built.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// Store returns the content store.
func (c *Context) Store() Store { return c.res.Store }

// Templates returns the template engine.
func (c *Context) Templates() Templates { return c.res.Templates }

// Scripts returns the script engine.
func (c *Context) Scripts() Scripts { return c.res.Scripts }

// Properties returns the site's configured properties.
func (c *Context) Properties() map[string]any { return c.res.Properties }

// Init submits the initialization task: cache warm-up, index build, init
// script and scheduler start, in that order. When wait is true it blocks
// until initialization finishes, InitTimeout elapses or ctx ends. On failure
// the context destroys itself and the error wraps ErrInitFailed. Calling
// Init again does not resubmit the task.
func (c *Context) Init(ctx context.Context, wait bool) error {
	if c.initStarted.CompareAndSwap(false, true) {
		done, err := c.queue.submit("init", c.initialize)
		if err != nil {
			c.failInit(err)
			return c.InitErr()
		}
		go c.completeInit(done)
	}
	if !wait {
		return nil
	}

	timeout, stop := c.initTimer()
	defer stop()
	select {
	case <-c.initDone:
	case <-timeout:
		return fmt.Errorf("site: init %s: %w", c.name, ErrInitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.InitErr(); err != nil {
		return err
	}
	if c.State() != StateReady {
		return fmt.Errorf("site: init %s: %w", c.name, ErrDestroyed)
	}
	return nil
}

func (c *Context) initialize(ctx context.Context) error {
	if c.opts.WarmUp && c.res.Store != nil {
		if err := c.res.Store.WarmCache(ctx); err != nil {
			return err
		}
	}
	if c.res.Store != nil {
		if err := c.res.Store.BuildIndex(ctx); err != nil {
			return err
		}
	}
	if c.opts.InitScript != "" && c.res.Scripts != nil {
		if err := c.res.Scripts.Run(ctx, c.opts.InitScript); err != nil {
			return err
		}
	}
	if c.res.Scheduler != nil {
		if err := c.res.Scheduler.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) completeInit(done <-chan error) {
	err := <-done
	if err == nil && !c.transition(eventReady) {
		err = ErrDestroyed
	}
	if err != nil {
		c.failInit(err)
		return
	}
	c.logger.Infow("context ready")
	c.markInitDone()
}

func (c *Context) failInit(cause error) {
	c.initMu.Lock()
	c.initErr = fmt.Errorf("site: init %s: %w: %w", c.name, ErrInitFailed, cause)
	c.initMu.Unlock()
	c.logger.Errorw("initialization failed", "error", cause)
	if err := c.Destroy(); err != nil {
		c.logger.Warnw("release after failed init", "error", err)
	}
	c.markInitDone()
}

func (c *Context) markInitDone() {
	c.initOnce.Do(func() { close(c.initDone) })
}

// InitErr returns the initialization failure, if any.
func (c *Context) InitErr() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initErr
}

// initTimer returns a channel that fires after InitTimeout, or never when
// InitTimeout is zero.
func (c *Context) initTimer() (<-chan time.Time, func()) {
	if c.opts.InitTimeout <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(c.opts.InitTimeout)
	return t.C, func() { t.Stop() }
}

// IsValid waits for initialization up to InitTimeout and then reports whether
// the context is ready and its store still validates. A timeout reports
// false; only an ended ctx is returned as an error.
func (c *Context) IsValid(ctx context.Context) (bool, error) {
	timeout, stop := c.initTimer()
	defer stop()
	select {
	case <-c.initDone:
	case <-timeout:
		c.logger.Debugw("initialization still running, treating context as invalid")
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}

	if c.State() != StateReady {
		return false, nil
	}
	if c.res.Store != nil {
		if err := c.res.Store.Validate(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			c.logger.Infow("store no longer valid", "error", err)
			return false, nil
		}
	}
	return true, nil
}

// Destroy moves the context to StateDestroyed, waits up to ShutdownTimeout
// for accessors to leave, stops the maintenance queue and releases every
// resource. A release failure does not stop the others; all failures are
// returned joined. Destroying twice is a no-op. Destroy must not be called
// from a maintenance task.
func (c *Context) Destroy() error {
	if !c.transition(eventDestroy) {
		return nil
	}
	c.cancel()

	start := time.Now()
	weight := int64(c.opts.MaxAccessors)
	acquireCtx, cancel := context.Background(), context.CancelFunc(func() {})
	if c.opts.ShutdownTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(acquireCtx, c.opts.ShutdownTimeout)
	}
	acquired := c.access.Acquire(acquireCtx, weight) == nil
	cancel()
	if !acquired {
		c.logger.Warnw("shutdown timeout elapsed with accessors still inside, destroying anyway",
			"accessors", c.Accessors(), "timeout", c.opts.ShutdownTimeout)
	}

	c.queue.stop()
	err := c.release()
	if acquired {
		c.access.Release(weight)
	}
	c.markInitDone()

	if err != nil {
		c.logger.Warnw("context destroyed with release errors", "error", err, "elapsed", time.Since(start))
	} else {
		c.logger.Infow("context destroyed", "elapsed", time.Since(start))
	}
	return err
}

// release closes the resources in reverse build order.
func (c *Context) release() error {
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("release %s: panic: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", name, err))
		}
	}
	if c.res.Scheduler != nil {
		step("scheduler", c.res.Scheduler.Stop)
	}
	if c.res.Templates != nil {
		step("templates", c.res.Templates.Close)
	}
	if c.res.Scripts != nil {
		step("scripts", c.res.Scripts.Close)
	}
	if c.res.Store != nil {
		step("store", c.res.Store.Close)
	}
	return errors.Join(errs...)
}
