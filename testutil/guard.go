// Package testutil holds test helpers that enforce package boundaries, for
// example that vocabulary mapping stays free of I/O.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ioPackages are standard library packages that perform network, process
// or database I/O.
var ioPackages = map[string]struct{}{
	"net":          {},
	"net/http":     {},
	"os/exec":      {},
	"database/sql": {},
}

// IOImportForbidden matches imports that reach the network, processes,
// databases or the engine's own I/O layers.
func IOImportForbidden(path string) bool {
	if _, ok := ioPackages[path]; ok {
		return true
	}
	for _, prefix := range []string{"rd3/internal/gateway", "rd3/internal/infra", "rd3/internal/cluster", "rd3/internal/blob"} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, "rd3/internal") || strings.Contains(path, "/internal/")
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if
// any import satisfies forbidden.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertNoTransitiveDependency loads pattern with its dependency graph and
// fails if any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	seen := map[string]struct{}{}
	packages.Visit(pkgs, func(p *packages.Package) bool {
		if forbidden(p.PkgPath) {
			seen[p.PkgPath] = struct{}{}
		}
		return true
	}, nil)
	if len(seen) > 0 {
		viols := make([]string, 0, len(seen))
		for p := range seen {
			viols = append(viols, p)
		}
		sort.Strings(viols)
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

// AssertOnlyWrapperImports loads every package matching pattern (tests
// included) and fails when a package outside wrapper or infra imports
// infra. It keeps driver implementations behind their facade package.
func AssertOnlyWrapperImports(t testing.TB, pattern, infra, wrapper string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	under := func(path, prefix string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	seen := map[string]struct{}{}
	for _, pkg := range pkgs {
		if under(pkg.PkgPath, wrapper) || under(pkg.PkgPath, infra) {
			continue
		}
		for importPath := range pkg.Imports {
			if under(importPath, infra) {
				seen[filepath.Join(pkg.PkgPath, "...")+": "+importPath] = struct{}{}
			}
		}
	}
	if len(seen) > 0 {
		viols := make([]string, 0, len(seen))
		for v := range seen {
			viols = append(viols, v)
		}
		sort.Strings(viols)
		t.Fatalf("found %d forbidden imports of %s:\n%s", len(viols), infra, strings.Join(viols, "\n"))
	}
}
