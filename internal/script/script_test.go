package script

import (
	"context"
	"errors"
	"testing"
)

func newLibrary(t *testing.T) (*Library, *[]string) {
	t.Helper()
	var calls []string
	lib := NewLibrary()
	lib.Register("init", func(_ context.Context, env Env) error {
		calls = append(calls, "init:"+env.Site)
		return nil
	})
	lib.Register("fail", func(context.Context, Env) error {
		return errors.New("boom")
	})
	lib.Register("panic", func(context.Context, Env) error {
		panic("kaboom")
	})
	lib.RegisterUnsafe("shell", func(context.Context, Env) error {
		calls = append(calls, "shell")
		return nil
	})
	return lib, &calls
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()
	lib, calls := newLibrary(t)
	e := NewEngine(lib, Env{Site: "acme"}, true)
	ctx := context.Background()

	if err := e.Run(ctx, "init"); err != nil {
		t.Fatalf("Run(init): %v", err)
	}
	if len(*calls) != 1 || (*calls)[0] != "init:acme" {
		t.Errorf("calls = %v, want [init:acme]", *calls)
	}
	if err := e.Run(ctx, "missing"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("Run(missing) = %v, want ErrScriptNotFound", err)
	}
	if err := e.Run(ctx, "fail"); err == nil {
		t.Error("Run(fail) = nil, want error")
	}
	if err := e.Run(ctx, "panic"); err == nil {
		t.Error("Run(panic) = nil, want error")
	}
	if got := e.Cached(); got != 3 {
		t.Errorf("Cached = %d, want 3", got)
	}
}

func TestEngine_Sandbox(t *testing.T) {
	t.Parallel()
	lib, calls := newLibrary(t)
	e := NewEngine(lib, Env{Site: "acme"}, true)
	ctx := context.Background()

	if err := e.Run(ctx, "shell"); !errors.Is(err, ErrSandboxed) {
		t.Fatalf("Run(shell) sandboxed = %v, want ErrSandboxed", err)
	}
	e.SetSandbox(false)
	if e.Sandboxed() {
		t.Error("Sandboxed = true after SetSandbox(false)")
	}
	if err := e.Run(ctx, "shell"); err != nil {
		t.Fatalf("Run(shell) unsandboxed: %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("calls = %v, want [shell]", *calls)
	}
}

func TestEngine_Close(t *testing.T) {
	t.Parallel()
	lib, _ := newLibrary(t)
	e := NewEngine(lib, Env{Site: "acme"}, false)

	if !e.Has("init") {
		t.Fatal("Has(init) = false before Close")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if e.Cached() != 0 {
		t.Errorf("Cached after Close = %d, want 0", e.Cached())
	}
	if err := e.Run(context.Background(), "init"); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
}

func TestLibrary_Names(t *testing.T) {
	t.Parallel()
	lib, _ := newLibrary(t)
	got := lib.Names()
	want := []string{"fail", "init", "panic", "shell"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
