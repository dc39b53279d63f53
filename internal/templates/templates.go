// Package templates renders a site's html templates. Templates live under
// <site>/templates as *.tmpl files and are parsed on first use.
package templates

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Dir is the templates folder inside a site.
const Dir = "templates"

// Ext is the file extension of a template.
const Ext = ".tmpl"

// Sentinel errors for template lookup and rendering.
var (
	// ErrTemplateNotFound indicates no template file exists for the name.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrClosed is returned after the engine has been closed.
	ErrClosed = errors.New("template engine closed")
)

// Engine parses and caches the templates of one site.
type Engine struct {
	root  string
	funcs template.FuncMap

	mu     sync.Mutex
	parsed map[string]*template.Template
	closed bool
}

// New returns an engine over siteRoot/templates. funcs may be nil.
func New(siteRoot string, funcs template.FuncMap) *Engine {
	return &Engine{
		root:   filepath.Join(siteRoot, Dir),
		funcs:  funcs,
		parsed: make(map[string]*template.Template),
	}
}

// file maps a template name such as "pages/home" to its path on disk.
func (e *Engine) file(name string) (string, bool) {
	n := path.Clean("/" + strings.TrimSuffix(filepath.ToSlash(name), Ext))
	if n == "/" {
		return "", false
	}
	return filepath.Join(e.root, filepath.FromSlash(n[1:])+Ext), true
}

// Has reports whether a template file exists for name.
func (e *Engine) Has(name string) bool {
	f, ok := e.file(name)
	if !ok {
		return false
	}
	info, err := os.Stat(f)
	return err == nil && info.Mode().IsRegular()
}

func (e *Engine) load(name string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if t, ok := e.parsed[name]; ok {
		return t, nil
	}

	f, ok := e.file(name)
	if !ok {
		return nil, fmt.Errorf("templates: %q: %w", name, ErrTemplateNotFound)
	}
	src, err := os.ReadFile(f)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("templates: %q: %w", name, ErrTemplateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("templates: read %q: %w", name, err)
	}
	t, err := template.New(name).Funcs(e.funcs).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("templates: parse %q: %w", name, err)
	}
	e.parsed[name] = t
	return t, nil
}

// Render executes the named template with data into w.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	t, err := e.load(name)
	if err != nil {
		return err
	}
	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("templates: render %q: %w", name, err)
	}
	return nil
}

// Parsed returns the number of cached templates.
func (e *Engine) Parsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.parsed)
}

// Close drops the parsed templates. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.parsed = nil
	return nil
}
