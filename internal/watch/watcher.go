// Package watch observes a site folder for content changes and turns bursts
// of filesystem events into single rebuild requests.
package watch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Options configure a Watcher.
type Options struct {
	// Paths are slash-separated patterns relative to the site root. An event
	// qualifies when it matches one. Empty means everything.
	Paths []string
	// Exclude patterns win over Paths; excluded directories are not watched.
	Exclude []string
	// Interval between debounce ticks.
	Interval time.Duration
	// Threshold is the number of active intervals after which a rebuild is forced.
	Threshold int
}

// Watcher watches one site root recursively and calls rebuild when the
// debouncer decides the changes have settled. The ctx passed to rebuild is
// cancelled by Close.
type Watcher struct {
	site     string
	root     string
	opts     Options
	debounce *Debouncer
	rebuild  func(ctx context.Context)
	logger   *zap.SugaredLogger

	fw     *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a watcher for site rooted at root. It does not watch anything
// until Start.
func New(site, root string, opts Options, rebuild func(ctx context.Context), logger *zap.SugaredLogger) (*Watcher, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("watch: %s: interval must be positive", site)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %s: %w", site, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		site:     site,
		root:     root,
		opts:     opts,
		debounce: NewDebouncer(opts.Threshold),
		rebuild:  rebuild,
		logger:   logger.With("site", site),
		fw:       fw,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start adds the site tree to the watch list and starts the event loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		w.fw.Close()
		close(w.done)
		return fmt.Errorf("watch: %s: %w", w.site, err)
	}
	go w.loop()
	return nil
}

// Close stops the watcher and waits for the event loop to exit. Closing
// twice is a no-op. Close must not be called from the rebuild callback.
func (w *Watcher) Close() {
	w.once.Do(func() {
		w.cancel()
		w.fw.Close()
		<-w.done
	})
}

// Pending returns the number of changes waiting for a rebuild decision.
func (w *Watcher) Pending() int { return w.debounce.Pending() }

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The tree may change while it is walked.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(p); rel != "" && matchAny(w.opts.Exclude, rel) {
			return filepath.SkipDir
		}
		return w.fw.Add(p)
	})
}

func (w *Watcher) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

func (w *Watcher) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case <-ticker.C:
			if w.debounce.Tick() {
				w.logger.Infow("content settled, requesting rebuild")
				w.rebuild(w.ctx)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("watch error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel := w.rel(event.Name)
	if rel == "" || matchAny(w.opts.Exclude, rel) {
		return
	}

	var info os.FileInfo
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		var err error
		info, err = os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warnw("cannot watch new folder", "path", rel, "error", err)
			}
			return
		}
	}

	if !w.qualifies(rel) || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		return
	}

	hash, hasHash := eventHash(rel, event.Op, info)
	if w.debounce.Record(hash, hasHash) {
		w.logger.Debugw("change recorded", "path", rel, "op", event.Op.String())
	}
}

func (w *Watcher) qualifies(rel string) bool {
	return len(w.opts.Paths) == 0 || matchAny(w.opts.Paths, rel)
}

// eventHash fingerprints a create or write by path, op, size and mtime.
// Removals and renames have nothing left to fingerprint and carry no hash.
func eventHash(rel string, op fsnotify.Op, info os.FileInfo) (uint64, bool) {
	if info == nil || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		return 0, false
	}
	h := xxhash.New()
	_, _ = h.WriteString(rel)
	_, _ = h.WriteString(op.String())
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	_, _ = h.Write(buf[:])
	return h.Sum64(), true
}

// matchAny reports whether rel matches one of patterns. A pattern ending in
// "/**" matches the folder and everything beneath it; other patterns use
// path.Match and also match any file inside a matching folder.
func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		p = strings.Trim(p, "/")
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}
