// Package arch_test enforces the structural rules of the internal packages:
// layering, documentation, package-level state, interface placement and size.
package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

const (
	modulePath  = "github.com/craftercms/engine-sub000"
	internalPfx = modulePath + "/internal/"
)

// repoRoot walks up from this file to the directory holding go.mod.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	dir := filepath.Dir(thisFile)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find go.mod in any parent directory")
		}
		dir = parent
	}
}

func internalDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(repoRoot(t), "internal")
}

// internalPackages lists the package directories under internal/ that hold
// Go code, excluding arch_test.
func internalPackages(t *testing.T) []string {
	t.Helper()
	dir := internalDir(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var pkgs []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "arch_test" {
			continue
		}
		if len(goFiles(t, filepath.Join(dir, e.Name()), true)) > 0 {
			pkgs = append(pkgs, e.Name())
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// goFiles returns the .go files of dir, sorted. Test files are included only
// when withTests is set.
func goFiles(t *testing.T, dir string, withTests bool) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if !withTests && strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files
}

// parseSources parses the non-test files of an internal package.
func parseSources(t *testing.T, pkg string) (*token.FileSet, []*ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	var files []*ast.File
	for _, path := range goFiles(t, filepath.Join(internalDir(t), pkg), false) {
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			t.Fatalf("parsing %s: %v", path, err)
		}
		files = append(files, f)
	}
	return fset, files
}

// internalImports returns the internal packages imported by pkg's sources.
func internalImports(t *testing.T, pkg string) []string {
	t.Helper()
	_, files := parseSources(t, pkg)
	seen := make(map[string]bool)
	for _, f := range files {
		for _, imp := range f.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(path, internalPfx) {
				continue
			}
			rel := strings.TrimPrefix(path, internalPfx)
			if i := strings.Index(rel, "/"); i != -1 {
				rel = rel[:i]
			}
			seen[rel] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func TestInternalPackages(t *testing.T) {
	t.Parallel()

	pkgs := internalPackages(t)
	want := map[string]bool{"site": false, "lifecycle": false, "factory": false, "registry": false, "watch": false, "tenants": false}
	for _, p := range pkgs {
		if p == "arch_test" {
			t.Error("internalPackages must exclude arch_test")
		}
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, found := range want {
		if !found {
			t.Errorf("expected package %q in %v", p, pkgs)
		}
	}
}

func TestInternalImports(t *testing.T) {
	t.Parallel()

	imports := internalImports(t, "factory")
	for _, want := range []string{"site", "store"} {
		found := false
		for _, imp := range imports {
			if imp == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected internal/factory to import %q, got %v", want, imports)
		}
	}
}
