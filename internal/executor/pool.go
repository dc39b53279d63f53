// Package executor provides the bounded worker pool used for bulk context
// creation and for asynchronous rebuild and destroy requests.
package executor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("executor: pool closed")

// Pool runs submitted functions on a fixed number of goroutines. Submissions
// beyond the queue capacity block the submitter rather than spawning more
// goroutines.
type Pool struct {
	tasks  chan func()
	quit   chan struct{}
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	// mu guards closed; Submit holds the read side while sending so Close
	// never races a send into a pool whose workers have exited.
	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines fed by a queue of queueSize pending tasks.
func NewPool(workers, queueSize int, logger *zap.SugaredLogger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Pool{
		tasks:  make(chan func(), queueSize),
		quit:   make(chan struct{}),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues fn for execution. It blocks while the queue is full and
// returns ctx.Err() if ctx ends first, or ErrClosed once the pool is closed.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs everything already queued and waits for
// the workers to exit. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			p.run(fn)
		case <-p.quit:
			// Drain whatever was queued before Close.
			for {
				select {
				case fn := <-p.tasks:
					p.run(fn)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("task panicked", "panic", r)
		}
	}()
	fn()
}
