package cmd

import (
	"context"
	"html/template"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/craftercms/engine-sub000/internal/script"
)

// builtinLibrary returns the scripts every site can name in site.toml.
func builtinLibrary(log *zap.SugaredLogger) *script.Library {
	lib := script.NewLibrary()
	lib.Register("noop", func(context.Context, script.Env) error { return nil })
	lib.Register("heartbeat", func(_ context.Context, env script.Env) error {
		log.Infow("heartbeat", "site", env.Site)
		return nil
	})
	// gc touches the whole process, so sandboxed sites may not run it.
	lib.RegisterUnsafe("gc", func(_ context.Context, env script.Env) error {
		runtime.GC()
		log.Debugw("forced gc", "site", env.Site)
		return nil
	})
	return lib
}

// templateFuncs are available to every site template.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"now":   time.Now,
		"date": func(layout string, t time.Time) string {
			return t.Format(layout)
		},
	}
}
