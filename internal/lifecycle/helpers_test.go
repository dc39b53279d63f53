package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftercms/engine-sub000/internal/site"
)

var errFactory = errors.New("storage unreachable")

type fakeStore struct {
	invalid atomic.Bool
	closed  atomic.Int32
}

func (s *fakeStore) Validate(context.Context) error {
	if s.invalid.Load() {
		return errors.New("folder gone")
	}
	return nil
}

func (s *fakeStore) Read(string) ([]byte, error) { return nil, nil }

func (s *fakeStore) WarmCache(context.Context) error { return nil }

func (s *fakeStore) BuildIndex(context.Context) error { return nil }

func (s *fakeStore) ClearCache() {}

func (s *fakeStore) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeFactory struct {
	mu        sync.Mutex
	calls     map[string]int
	stores    map[string]*fakeStore
	failFirst int
	delay     time.Duration
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{calls: make(map[string]int), stores: make(map[string]*fakeStore)}
}

func (f *fakeFactory) CreateContext(_ context.Context, name string) (*site.Context, error) {
	return f.create(name, false)
}

func (f *fakeFactory) CreateFallbackContext(_ context.Context, name string) (*site.Context, error) {
	return f.create(name, true)
}

func (f *fakeFactory) create(name string, fallback bool) (*site.Context, error) {
	f.mu.Lock()
	f.calls[name]++
	fail := f.calls[name] <= f.failFirst
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return nil, errFactory
	}
	st := &fakeStore{}
	f.mu.Lock()
	f.stores[name] = st
	f.mu.Unlock()
	return site.New(name, fallback, site.Resources{Store: st}, site.Options{
		InitTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		MaxAccessors:    4,
	}), nil
}

func (f *fakeFactory) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeFactory) Store(name string) *fakeStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[name]
}

type staticTenants []string

func (s staticTenants) List(context.Context) ([]string, error) { return s, nil }

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newManager(t *testing.T, f *fakeFactory, tenants []string, opts Options) *Manager {
	t.Helper()
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = RetryPolicy{Base: 100 * time.Millisecond, Multiplier: 2, MaxAttempts: 4}
	}
	if opts.FallbackSite == "" {
		opts.FallbackSite = "_fallback"
	}
	m := New(Deps{Factory: f, Tenants: staticTenants(tenants)}, opts)
	t.Cleanup(m.Close)
	return m
}
