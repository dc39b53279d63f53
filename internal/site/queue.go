package site

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of maintenance work. ctx is cancelled when the context is
// destroyed and carries the owning context (see FromContext).
type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
	done chan error
}

// queue runs jobs one at a time in submission order.
type queue struct {
	ctx    context.Context
	logger *zap.SugaredLogger
	jobs   chan job

	// mu guards closed; submit holds the read side while sending so stop
	// never closes the queue under a pending send.
	mu       sync.RWMutex
	closed   bool
	quit     chan struct{}
	finished chan struct{}
}

func newQueue(ctx context.Context, size int, logger *zap.SugaredLogger) *queue {
	q := &queue{
		ctx:      ctx,
		logger:   logger,
		jobs:     make(chan job, size),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) submit(name string, fn Task) (<-chan error, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	j := job{name: name, fn: fn, done: make(chan error, 1)}
	select {
	case q.jobs <- j:
		return j.done, nil
	case <-q.quit:
		return nil, ErrQueueClosed
	}
}

func (q *queue) run() {
	defer close(q.finished)
	for {
		// Prefer quit so nothing new starts once stop has been called.
		select {
		case <-q.quit:
			q.drain()
			return
		default:
		}

		select {
		case j := <-q.jobs:
			j.done <- q.exec(j)
		case <-q.quit:
			q.drain()
			return
		}
	}
}

func (q *queue) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("maintenance task %q panicked: %v", j.name, r)
		}
	}()
	q.logger.Debugw("maintenance task started", "task", j.name)
	if err := j.fn(q.ctx); err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

// drain fails every job still queued.
func (q *queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			j.done <- ErrQueueClosed
		default:
			return
		}
	}
}

// stop rejects new jobs, waits for the running job and fails the rest.
func (q *queue) stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.quit)
	}
	q.mu.Unlock()
	<-q.finished
}
