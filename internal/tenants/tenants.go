// Package tenants supplies the authoritative list of site names. The
// lifecycle manager consumes the list for bulk creation and reconciliation.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Sentinel errors for tenant resolution.
var (
	// ErrInvalidName indicates a site name contains characters a folder name cannot.
	ErrInvalidName = errors.New("invalid site name")
	// ErrSiteExists indicates the site is already registered.
	ErrSiteExists = errors.New("site already registered")
	// ErrUnknownSite indicates the site is not registered.
	ErrUnknownSite = errors.New("site not registered")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateName checks that name can be used as a site folder name.
func ValidateName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("tenants: %q: %w", name, ErrInvalidName)
	}
	return nil
}

// FolderResolver lists the sub-directories of the sites root. Folders whose
// name starts with a dot or an underscore are not sites.
type FolderResolver struct {
	Root string
}

// List returns the site folder names, sorted.
func (r FolderResolver) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: read %s: %w", r.Root, err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() || strings.HasPrefix(n, ".") || strings.HasPrefix(n, "_") {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

// StaticResolver returns a fixed list.
type StaticResolver struct {
	Names []string
}

// List returns a sorted copy of the configured names without duplicates.
func (r StaticResolver) List(context.Context) ([]string, error) {
	seen := make(map[string]bool, len(r.Names))
	names := make([]string, 0, len(r.Names))
	for _, n := range r.Names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
