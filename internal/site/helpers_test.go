package site

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	mu    sync.Mutex
	calls []string

	validateErr error
	warmErr     error
	// block, when set, makes WarmCache wait for it to close or ctx to end.
	block chan struct{}

	closed atomic.Int32
}

func (s *fakeStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) Validate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateErr
}

func (s *fakeStore) Read(string) ([]byte, error) { return nil, nil }

func (s *fakeStore) WarmCache(ctx context.Context) error {
	s.record("warm")
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.warmErr
}

func (s *fakeStore) BuildIndex(context.Context) error {
	s.record("index")
	return nil
}

func (s *fakeStore) ClearCache() { s.record("clear") }

func (s *fakeStore) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeScripts struct {
	runErr  error
	ran     atomic.Int32
	sandbox atomic.Bool
	closed  atomic.Int32
}

func (f *fakeScripts) Run(context.Context, string) error {
	f.ran.Add(1)
	return f.runErr
}

func (f *fakeScripts) SetSandbox(enabled bool) { f.sandbox.Store(enabled) }

func (f *fakeScripts) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeTemplates struct {
	closeErr error
	closed   atomic.Int32
}

func (f *fakeTemplates) Has(string) bool { return false }

func (f *fakeTemplates) Render(io.Writer, string, any) error { return nil }

func (f *fakeTemplates) Close() error {
	f.closed.Add(1)
	return f.closeErr
}

type fakeScheduler struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (f *fakeScheduler) Start(context.Context) error {
	f.started.Add(1)
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.stopped.Add(1)
	return nil
}

type fixture struct {
	store     *fakeStore
	scripts   *fakeScripts
	templates *fakeTemplates
	scheduler *fakeScheduler
}

func (f *fixture) resources() Resources {
	return Resources{Store: f.store, Scripts: f.scripts, Templates: f.templates, Scheduler: f.scheduler}
}

func newFixture() *fixture {
	return &fixture{
		store:     &fakeStore{},
		scripts:   &fakeScripts{},
		templates: &fakeTemplates{},
		scheduler: &fakeScheduler{},
	}
}

func testOptions() Options {
	return Options{
		InitTimeout:     2 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		MaxAccessors:    8,
		QueueSize:       4,
		WarmUp:          true,
		InitScript:      "init",
	}
}

// newReady builds a context and initializes it, failing the test on error.
func newReady(t *testing.T, f *fixture, opts Options) *Context {
	t.Helper()
	c := New("acme", false, f.resources(), opts)
	if err := c.Init(context.Background(), true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

var errBoom = errors.New("boom")
