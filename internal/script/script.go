// Package script runs named Go script handlers on behalf of a site. A
// Library holds the handlers known to the process; each site context gets its
// own Engine, which resolves handlers lazily into a per-site cache and applies
// the site's sandbox setting.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Sentinel errors for script resolution and execution.
var (
	// ErrScriptNotFound indicates no handler is registered under the name.
	ErrScriptNotFound = errors.New("script not found")
	// ErrSandboxed indicates an unsafe script was refused by the sandbox.
	ErrSandboxed = errors.New("script refused by sandbox")
	// ErrClosed is returned after the engine has been closed.
	ErrClosed = errors.New("script engine closed")
)

// Env is what a handler sees of the site it runs for.
type Env struct {
	Site string
}

// Handler is a script body.
type Handler func(ctx context.Context, env Env) error

type entry struct {
	handler Handler
	unsafe  bool
}

// Library is the set of handlers available to every site.
type Library struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{entries: make(map[string]entry)}
}

// Register adds a handler that may run inside the sandbox.
func (l *Library) Register(name string, h Handler) {
	l.add(name, entry{handler: h})
}

// RegisterUnsafe adds a handler that is refused while the sandbox is enabled.
func (l *Library) RegisterUnsafe(name string, h Handler) {
	l.add(name, entry{handler: h, unsafe: true})
}

func (l *Library) add(name string, e entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[name] = e
}

func (l *Library) lookup(name string) (entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[name]
	return e, ok
}

// Names returns the registered handler names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.entries))
	for n := range l.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Engine executes library scripts for one site.
type Engine struct {
	lib *Library
	env Env

	mu       sync.Mutex
	compiled map[string]entry

	sandbox atomic.Bool
	closed  atomic.Bool
}

// NewEngine returns an engine for env with the sandbox set to sandbox.
func NewEngine(lib *Library, env Env, sandbox bool) *Engine {
	e := &Engine{lib: lib, env: env, compiled: make(map[string]entry)}
	e.sandbox.Store(sandbox)
	return e
}

// Has reports whether name resolves to a handler.
func (e *Engine) Has(name string) bool {
	_, err := e.resolve(name)
	return err == nil
}

func (e *Engine) resolve(name string) (entry, error) {
	if e.closed.Load() {
		return entry{}, ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.compiled[name]; ok {
		return c, nil
	}
	c, ok := e.lib.lookup(name)
	if !ok {
		return entry{}, fmt.Errorf("script: %q: %w", name, ErrScriptNotFound)
	}
	e.compiled[name] = c
	return c, nil
}

// Run executes the named script. Panics inside the handler are returned as errors.
func (e *Engine) Run(ctx context.Context, name string) (err error) {
	c, err := e.resolve(name)
	if err != nil {
		return err
	}
	if c.unsafe && e.sandbox.Load() {
		return fmt.Errorf("script: %q: %w", name, ErrSandboxed)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script: %q panicked: %v", name, r)
		}
	}()
	if err := c.handler(ctx, e.env); err != nil {
		return fmt.Errorf("script: %q: %w", name, err)
	}
	return nil
}

// SetSandbox enables or disables the sandbox.
func (e *Engine) SetSandbox(enabled bool) { e.sandbox.Store(enabled) }

// Sandboxed reports whether the sandbox is enabled.
func (e *Engine) Sandboxed() bool { return e.sandbox.Load() }

// Cached returns the number of resolved handlers held by the engine.
func (e *Engine) Cached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.compiled)
}

// Close drops the resolved handlers. Closing twice is a no-op.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	e.compiled = make(map[string]entry)
	e.mu.Unlock()
	return nil
}
