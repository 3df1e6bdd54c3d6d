package kv

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyFacadesImportInfra keeps callers on the kv.Store and blob.Store
// interfaces: only the facade packages may import the infra drivers.
func TestOnlyFacadesImportInfra(t *testing.T) {
	rules := map[string]string{
		"fieldmission/internal/infra/kv":   "fieldmission/internal/kv",
		"fieldmission/internal/infra/blob": "fieldmission/internal/blob",
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "fieldmission/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var violations []string
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, "fieldmission/internal/infra/") {
			continue
		}
		for importPath := range pkg.Imports {
			for infra, facade := range rules {
				if !hasPathPrefix(importPath, infra) || hasPathPrefix(pkg.PkgPath, facade) {
					continue
				}
				violations = append(violations, pkg.PkgPath+": "+importPath)
			}
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		violations = compact(violations)
		for _, v := range violations {
			t.Errorf("forbidden infra import: %s", v)
		}
		t.Fatalf("found %d forbidden infra imports", len(violations))
	}
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
