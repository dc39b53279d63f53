// Package store is the filesystem-backed content store of a site. Each site
// lives in its own folder under the sites root; items read through the store
// are kept in an in-memory cache until ClearCache or Close.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// maxCachedItem is the largest file the warm-up step pre-loads.
const maxCachedItem = 1 << 20

// Options control how a store is opened.
type Options struct {
	// Create makes the site folder when it is missing. Used for the fallback site.
	Create bool
	// WarmPaths limits WarmCache to these slash-separated prefixes; empty means all.
	WarmPaths []string
}

// Store is the content store handle owned by one site context.
type Store struct {
	site  string
	root  string
	items *cache.Cache

	mu        sync.RWMutex
	index     []string
	warmPaths []string

	closed atomic.Bool
}

// Open returns a store for site rooted at sitesRoot/site.
func Open(sitesRoot, site string, opts Options) (*Store, error) {
	if site == "" || strings.ContainsAny(site, `/\`) || site == "." || site == ".." {
		return nil, fmt.Errorf("store: open %q: %w", site, ErrInvalidPath)
	}
	root := filepath.Join(sitesRoot, site)

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist) && opts.Create:
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", root, err)
		}
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("store: open %q: %w", site, ErrSiteNotFound)
	case err != nil:
		return nil, fmt.Errorf("store: stat %s: %w", root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("store: open %q: %w", site, ErrSiteNotFound)
	}

	return &Store{
		site:      site,
		root:      root,
		warmPaths: opts.WarmPaths,
		// No expiration and no janitor goroutine; entries live until cleared.
		items: cache.New(cache.NoExpiration, 0),
	}, nil
}

// Root returns the site folder.
func (s *Store) Root() string { return s.root }

// Validate reports whether the store is still usable: it has not been closed
// and the site folder still exists.
func (s *Store) Validate(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("store: validate %q: %w", s.site, ErrSiteNotFound)
	}
	return nil
}

// clean normalizes a content path and rejects anything outside the root.
func clean(p string) (string, error) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("store: %q: %w", p, ErrInvalidPath)
	}
	return c, nil
}

// Read returns the content at p, serving it from the cache when possible.
func (s *Store) Read(p string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	key, err := clean(p)
	if err != nil {
		return nil, err
	}
	if v, ok := s.items.Get(key); ok {
		return v.([]byte), nil
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("store: read %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", key, err)
	}
	s.items.Set(key, data, cache.NoExpiration)
	return data, nil
}

// Exists reports whether a regular file exists at p.
func (s *Store) Exists(p string) bool {
	key, err := clean(p)
	if err != nil || s.closed.Load() {
		return false
	}
	if _, ok := s.items.Get(key); ok {
		return true
	}
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(key)))
	return err == nil && info.Mode().IsRegular()
}

// Walk calls fn with the slash-separated path of every regular file in the site.
func (s *Store) Walk(ctx context.Context, fn func(rel string) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// SetWarmPaths replaces the prefixes WarmCache is limited to.
func (s *Store) SetWarmPaths(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmPaths = append([]string(nil), paths...)
}

func (s *Store) warmable(rel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.warmPaths) == 0 {
		return true
	}
	for _, prefix := range s.warmPaths {
		prefix = strings.Trim(prefix, "/")
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

// WarmCache pre-loads every warmable file into the item cache.
func (s *Store) WarmCache(ctx context.Context) error {
	err := s.Walk(ctx, func(rel string) error {
		if !s.warmable(rel) {
			return nil
		}
		full := filepath.Join(s.root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil || info.Size() > maxCachedItem {
			return nil
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		s.items.Set(rel, data, cache.NoExpiration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: warm cache %q: %w", s.site, err)
	}
	return nil
}

// BuildIndex rebuilds the sorted list of content paths.
func (s *Store) BuildIndex(ctx context.Context) error {
	var paths []string
	if err := s.Walk(ctx, func(rel string) error {
		paths = append(paths, rel)
		return nil
	}); err != nil {
		return fmt.Errorf("store: build index %q: %w", s.site, err)
	}
	sort.Strings(paths)

	s.mu.Lock()
	s.index = paths
	s.mu.Unlock()
	return nil
}

// Index returns a copy of the content paths collected by the last BuildIndex.
func (s *Store) Index() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.index))
	copy(out, s.index)
	return out
}

// CachedItems returns the number of items in the cache.
func (s *Store) CachedItems() int { return s.items.ItemCount() }

// ClearCache drops every cached item.
func (s *Store) ClearCache() { s.items.Flush() }

// Close releases the store. Subsequent operations fail with ErrClosed.
// Closing twice returns ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.items.Flush()
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}
