// Package scheduler runs a site's interval jobs. Jobs are started when the
// site context becomes ready and stopped when it is destroyed.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by Start on a scheduler that has been started.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Runner executes a script by name.
type Runner interface {
	Run(ctx context.Context, name string) error
}

// Job runs Script every Interval.
type Job struct {
	Name     string
	Script   string
	Interval time.Duration
}

// Scheduler owns one goroutine per job between Start and Stop.
type Scheduler struct {
	runner Runner
	jobs   []Job
	logger *zap.SugaredLogger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runs    map[string]int
}

// New returns a scheduler for jobs. Nothing runs until Start.
func New(runner Runner, jobs []Job, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{runner: runner, jobs: jobs, logger: logger, runs: make(map[string]int)}
}

// Jobs returns the configured jobs.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start launches the jobs. ctx bounds every job run; Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runner.Run(ctx, j.Script); err != nil && ctx.Err() == nil {
				s.logger.Warnw("job failed", "job", j.Name, "script", j.Script, "error", err)
			}
			s.mu.Lock()
			s.runs[j.Name]++
			s.mu.Unlock()
		}
	}
}

// Runs returns how many times the named job has run.
func (s *Scheduler) Runs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name]
}

// Stop cancels the jobs and waits for in-flight runs to return. Stopping a
// scheduler that never started, or stopping twice, is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}
