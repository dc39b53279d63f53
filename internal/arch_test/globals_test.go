package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

// allowedGlobalPrefixes names, per package, the prefixes of package-level
// vars that are immutable after init. ui keeps its lipgloss palette and
// styles as package vars.
var allowedGlobalPrefixes = map[string][]string{
	"ui": {"style", "color"},
}

// TestNoMutableGlobalState flags package-level vars other than error
// sentinels, compiled regexps, sync or atomic values, interface checks,
// literals and allowlisted prefixes.
func TestNoMutableGlobalState(t *testing.T) {
	t.Parallel()

	for _, pkg := range internalPackages(t) {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()

			fset, files := parseSources(t, pkg)
			for _, f := range files {
				for _, name := range mutableGlobals(f, allowedGlobalPrefixes[pkg]) {
					t.Errorf("%s: mutable global %s; inject it or move it into a function",
						fset.Position(name.Pos()), name.Name)
				}
			}
		})
	}
}

// mutableGlobals returns the package-level var names of f that are not
// allowed by any rule.
func mutableGlobals(f *ast.File, prefixes []string) []*ast.Ident {
	var bad []*ast.Ident
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, name := range vs.Names {
				var val ast.Expr
				if i < len(vs.Values) {
					val = vs.Values[i]
				}
				if name.Name == "_" || hasPrefix(name.Name, prefixes) || allowedValue(vs.Type, val) {
					continue
				}
				bad = append(bad, name)
			}
		}
	}
	return bad
}

func hasPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func allowedValue(typ, val ast.Expr) bool {
	if id, ok := typ.(*ast.Ident); ok && id.Name == "error" {
		return true
	}
	if sel, ok := typ.(*ast.SelectorExpr); ok {
		if pkg, ok := sel.X.(*ast.Ident); ok && (pkg.Name == "sync" || pkg.Name == "atomic") {
			return true
		}
	}
	switch v := val.(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		switch callName(v) {
		case "errors.New", "fmt.Errorf", "regexp.MustCompile":
			return true
		}
	}
	return false
}

func callName(call *ast.CallExpr) string {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return ""
	}
	return pkg.Name + "." + sel.Sel.Name
}

func TestGlobalRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		bad  int
	}{
		{"error sentinel", `package p; import "errors"; var ErrFoo = errors.New("foo")`, 0},
		{"wrapped sentinel", `package p; import "fmt"; var ErrBar = fmt.Errorf("bar: %w", nil)`, 0},
		{"interface check", `package p; var _ error = nil`, 0},
		{"regexp", `package p; import "regexp"; var re = regexp.MustCompile("^a$")`, 0},
		{"literal", `package p; var name = "x"`, 0},
		{"composite", `package p; var names = []string{"a"}`, 0},
		{"atomic", `package p; import "sync/atomic"; var n atomic.Int64`, 0},
		{"registry", `package p; var registry map[string]int`, 1},
		{"constructed", `package p; import "bytes"; var buf = bytes.NewBuffer(nil)`, 1},
		{"prefixed", `package p; import "x"; var styleTitle = x.New()`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := parser.ParseFile(token.NewFileSet(), "p.go", tt.src, 0)
			if err != nil {
				t.Fatal(err)
			}
			if got := len(mutableGlobals(f, []string{"style"})); got != tt.bad {
				t.Errorf("mutableGlobals() flagged %d vars, want %d", got, tt.bad)
			}
		})
	}
}
