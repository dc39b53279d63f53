package site

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Store is the content store handle of a site.
type Store interface {
	Validate(ctx context.Context) error
	Read(path string) ([]byte, error)
	WarmCache(ctx context.Context) error
	BuildIndex(ctx context.Context) error
	ClearCache()
	Close() error
}

// Scripts runs site scripts and holds the site's resolved script handlers.
type Scripts interface {
	Run(ctx context.Context, name string) error
	SetSandbox(enabled bool)
	Close() error
}

// Templates renders site templates.
type Templates interface {
	Has(name string) bool
	Render(w io.Writer, name string, data any) error
	Close() error
}

// Scheduler runs the site's jobs between Start and Stop.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// Resources are the handles a context owns. Any of them may be nil.
type Resources struct {
	Store      Store
	Scripts    Scripts
	Templates  Templates
	Scheduler  Scheduler
	Properties map[string]any
}

// Options tune a context's timeouts, lock and initialization.
type Options struct {
	// InitTimeout bounds how long Init and IsValid wait for initialization.
	// Zero waits without bound.
	InitTimeout time.Duration
	// ShutdownTimeout bounds how long Destroy waits for accessors to leave.
	// Zero waits without bound.
	ShutdownTimeout time.Duration
	// MaxAccessors is the number of concurrent Enter holds allowed.
	MaxAccessors int
	// QueueSize is the buffer of the maintenance queue.
	QueueSize int
	// WarmUp pre-loads the store cache during initialization.
	WarmUp bool
	// InitScript, when set, runs as the last initialization step.
	InitScript string
	Logger     *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.MaxAccessors < 1 {
		o.MaxAccessors = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = 16
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}
