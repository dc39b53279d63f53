// Package factory builds site contexts. Resources are acquired in a fixed
// order and released in reverse when a later step fails, so a context is
// either returned whole or not at all.
package factory

import (
	"context"
	"errors"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/scheduler"
	"github.com/craftercms/engine-sub000/internal/script"
	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/siteconfig"
	"github.com/craftercms/engine-sub000/internal/store"
	"github.com/craftercms/engine-sub000/internal/templates"
)

// ErrMissingScript indicates site.toml names a script the library does not provide.
var ErrMissingScript = errors.New("site configuration references unknown script")

// Options configure a Factory.
type Options struct {
	// SitesRoot is the folder holding one sub-folder per site.
	SitesRoot string
	// Library provides the scripts every site can run.
	Library *script.Library
	// TemplateFuncs are made available to every site template.
	TemplateFuncs template.FuncMap
	// Site holds the timeouts and limits applied to every context built.
	Site   site.Options
	Logger *zap.SugaredLogger
}

// Factory creates site contexts from the sites root.
type Factory struct {
	opts   Options
	logger *zap.SugaredLogger
}

// New returns a factory.
func New(opts Options) *Factory {
	if opts.Library == nil {
		opts.Library = script.NewLibrary()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Site.Logger == nil {
		opts.Site.Logger = opts.Logger
	}
	return &Factory{opts: opts, logger: opts.Logger}
}

// CreateContext builds the context of site name. The context is returned in
// StateInitializing; the caller runs Init.
func (f *Factory) CreateContext(ctx context.Context, name string) (*site.Context, error) {
	return f.build(ctx, name, false)
}

// CreateFallbackContext builds the fallback context served when no site can
// be resolved. Its folder is created when missing.
func (f *Factory) CreateFallbackContext(ctx context.Context, name string) (*site.Context, error) {
	return f.build(ctx, name, true)
}

func (f *Factory) build(ctx context.Context, name string, fallback bool) (_ *site.Context, err error) {
	logger := f.logger.With("site", name)

	var unwind []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(unwind) - 1; i >= 0; i-- {
			if uerr := unwind[i](); uerr != nil {
				logger.Warnw("release after failed build", "error", uerr)
			}
		}
	}()

	// 1. content store
	st, err := store.Open(f.opts.SitesRoot, name, store.Options{Create: fallback})
	if err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}
	unwind = append(unwind, st.Close)

	// 2. script engine, sandboxed until the site configuration says otherwise
	scripts := script.NewEngine(f.opts.Library, script.Env{Site: name}, true)
	unwind = append(unwind, scripts.Close)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}

	// 3. site configuration
	cfg, err := siteconfig.Load(st.Root())
	if err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}
	jobs, err := cfg.JobSpecs()
	if err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}
	if err := checkScripts(scripts, cfg, jobs); err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}
	scripts.SetSandbox(cfg.Sandbox)
	st.SetWarmPaths(cfg.WarmPaths)

	// 4. template engine
	tmpl := templates.New(st.Root(), f.opts.TemplateFuncs)
	unwind = append(unwind, tmpl.Close)

	// 5. scheduler
	schedJobs := make([]scheduler.Job, len(jobs))
	for i, j := range jobs {
		schedJobs[i] = scheduler.Job{Name: j.Name, Script: j.Script, Interval: j.Interval}
	}
	sched := scheduler.New(scripts, schedJobs, logger.With("component", "scheduler"))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("factory: %s: %w", name, err)
	}

	// 6. the context with its maintenance hooks
	opts := f.opts.Site
	opts.WarmUp = cfg.WarmUp
	opts.InitScript = cfg.InitScript
	c := site.New(name, fallback, site.Resources{
		Store:      st,
		Scripts:    scripts,
		Templates:  tmpl,
		Scheduler:  sched,
		Properties: cfg.Properties,
	}, opts)

	logger.Debugw("context built", "context", c.ID(), "fallback", fallback, "jobs", len(jobs))
	return c, nil
}

// checkScripts verifies every script named by the configuration resolves.
func checkScripts(scripts *script.Engine, cfg *siteconfig.Config, jobs []siteconfig.JobSpec) error {
	if cfg.InitScript != "" && !scripts.Has(cfg.InitScript) {
		return fmt.Errorf("%w: init script %q", ErrMissingScript, cfg.InitScript)
	}
	for _, j := range jobs {
		if !scripts.Has(j.Script) {
			return fmt.Errorf("%w: job %q script %q", ErrMissingScript, j.Name, j.Script)
		}
	}
	return nil
}
