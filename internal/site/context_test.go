package site

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_Ready(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := newReady(t, f, testOptions())

	if got := c.State(); got != StateReady {
		t.Errorf("State = %q, want %q", got, StateReady)
	}
	calls := f.store.Calls()
	if len(calls) != 2 || calls[0] != "warm" || calls[1] != "index" {
		t.Errorf("store calls = %v, want [warm index]", calls)
	}
	if f.scripts.ran.Load() != 1 {
		t.Errorf("init script ran %d times, want 1", f.scripts.ran.Load())
	}
	if f.scheduler.started.Load() != 1 {
		t.Errorf("scheduler started %d times, want 1", f.scheduler.started.Load())
	}
	ok, err := c.IsValid(context.Background())
	if err != nil || !ok {
		t.Errorf("IsValid = %v, %v; want true, nil", ok, err)
	}
	if c.ID() == "" || c.Name() != "acme" || c.IsFallback() {
		t.Errorf("identity = %q %q %v", c.ID(), c.Name(), c.IsFallback())
	}
}

func TestInit_NoWaitThenValid(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := New("acme", false, f.resources(), testOptions())
	t.Cleanup(func() { _ = c.Destroy() })

	if err := c.Init(context.Background(), false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// IsValid waits on the init latch.
	ok, err := c.IsValid(context.Background())
	if err != nil || !ok {
		t.Errorf("IsValid = %v, %v; want true, nil", ok, err)
	}
}

func TestInit_FailureDestroys(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.scripts.runErr = errBoom
	c := New("acme", false, f.resources(), testOptions())

	err := c.Init(context.Background(), true)
	if !errors.Is(err, ErrInitFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("Init = %v, want ErrInitFailed wrapping boom", err)
	}
	if got := c.State(); got != StateDestroyed {
		t.Errorf("State = %q, want %q", got, StateDestroyed)
	}
	if f.store.closed.Load() != 1 || f.scripts.closed.Load() != 1 || f.templates.closed.Load() != 1 {
		t.Error("resources not released after failed init")
	}
	ok, err := c.IsValid(context.Background())
	if ok || err != nil {
		t.Errorf("IsValid = %v, %v; want false, nil", ok, err)
	}
}

func TestInit_Timeout(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.block = make(chan struct{})
	opts := testOptions()
	opts.InitTimeout = 30 * time.Millisecond
	c := New("acme", false, f.resources(), opts)

	if err := c.Init(context.Background(), true); !errors.Is(err, ErrInitTimeout) {
		t.Fatalf("Init = %v, want ErrInitTimeout", err)
	}
	ok, err := c.IsValid(context.Background())
	if ok || err != nil {
		t.Errorf("IsValid during init = %v, %v; want false, nil", ok, err)
	}
	if err := c.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
	if f.store.closed.Load() != 1 {
		t.Error("store not closed after Destroy during init")
	}
}

func TestIsValid_CancelledWait(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.block = make(chan struct{})
	opts := testOptions()
	opts.InitTimeout = 0
	c := New("acme", false, f.resources(), opts)
	t.Cleanup(func() { _ = c.Destroy() })

	if err := c.Init(context.Background(), false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := c.IsValid(ctx)
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("IsValid = %v, %v; want false, DeadlineExceeded", ok, err)
	}
}

func TestIsValid_StoreInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := newReady(t, f, testOptions())

	f.store.mu.Lock()
	f.store.validateErr = errBoom
	f.store.mu.Unlock()

	ok, err := c.IsValid(context.Background())
	if ok || err != nil {
		t.Errorf("IsValid = %v, %v; want false, nil", ok, err)
	}
}

func TestDestroy_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := newReady(t, f, testOptions())

	for i := 0; i < 2; i++ {
		if err := c.Destroy(); err != nil {
			t.Fatalf("Destroy #%d: %v", i+1, err)
		}
	}
	if got := f.store.closed.Load(); got != 1 {
		t.Errorf("store closed %d times, want 1", got)
	}
	if got := f.scheduler.stopped.Load(); got != 1 {
		t.Errorf("scheduler stopped %d times, want 1", got)
	}
	ok, _ := c.IsValid(context.Background())
	if ok {
		t.Error("IsValid = true after Destroy")
	}
}

func TestDestroy_ReleaseIsBestEffort(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.templates.closeErr = errBoom
	c := newReady(t, f, testOptions())

	err := c.Destroy()
	if !errors.Is(err, errBoom) {
		t.Errorf("Destroy = %v, want boom", err)
	}
	if f.scripts.closed.Load() != 1 || f.store.closed.Load() != 1 {
		t.Error("release stopped after the first failure")
	}
}

func TestDestroy_WaitsForAccessors(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := newReady(t, f, testOptions())

	const readers = 3
	holds := make([]context.Context, readers)
	for i := range holds {
		ctx, err := c.Enter(context.Background())
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		holds[i] = ctx
	}

	destroyed := make(chan struct{})
	go func() {
		_ = c.Destroy()
		close(destroyed)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-destroyed:
		t.Fatal("Destroy returned while accessors were inside")
	default:
	}
	if f.store.closed.Load() != 0 {
		t.Fatal("store released while accessors were inside")
	}

	for _, ctx := range holds {
		c.Exit(ctx)
	}
	select {
	case <-destroyed:
	case <-time.After(2 * time.Second):
		t.Fatal("Destroy did not return after accessors left")
	}
	if f.store.closed.Load() != 1 {
		t.Error("store not released")
	}
}

func TestDestroy_ShutdownTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture()
	opts := testOptions()
	opts.ShutdownTimeout = 30 * time.Millisecond
	c := newReady(t, f, opts)

	ctx, err := c.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	start := time.Now()
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("Destroy did not wait for the shutdown timeout")
	}
	if f.store.closed.Load() != 1 {
		t.Error("store not released after shutdown timeout")
	}
	// The straggler leaving late must not panic.
	c.Exit(ctx)
}

func TestIsValid_InitTimeoutLogsAtDebug(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.block = make(chan struct{})
	core, logs := observer.New(zapcore.DebugLevel)
	opts := testOptions()
	opts.InitTimeout = 10 * time.Millisecond
	opts.Logger = zap.New(core).Sugar()
	c := New("acme", false, f.resources(), opts)
	t.Cleanup(func() { _ = c.Destroy() })

	if err := c.Init(context.Background(), false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 5; i++ {
		if ok, err := c.IsValid(context.Background()); ok || err != nil {
			t.Fatalf("IsValid = %v, %v; want false, nil", ok, err)
		}
	}

	timeouts := logs.FilterMessage("initialization still running, treating context as invalid")
	if timeouts.Len() != 5 {
		t.Fatalf("got %d timeout entries, want 5", timeouts.Len())
	}
	if n := timeouts.FilterLevelExact(zapcore.WarnLevel).Len(); n != 0 {
		t.Errorf("%d timeout entries logged at warn, want debug only", n)
	}
}
