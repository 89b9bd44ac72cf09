// SPDX-License-Identifier: MIT

// verify-exec-boundary gates subprocess use: only the file_mover worker
// shells out (rar, unrar), so os/exec must not appear anywhere else.
// Run from the module root: go run ./scripts/verify-exec-boundary.go
package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	pattern := "./..."
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	violations, err := Analyze(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "os/exec outside the file mover:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, "  "+v)
		}
		os.Exit(1)
	}
}

// Analyze lists the non-test packages under the pattern that import
// os/exec without being allowed to.
func Analyze(pattern string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedFiles,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if allowedExecImporter(pkg.PkgPath) {
			continue
		}
		if _, ok := pkg.Imports["os/exec"]; ok {
			violations = append(violations, pkg.PkgPath)
		}
	}
	return violations, nil
}

// allowedExecImporter reports whether the package may spawn subprocesses.
// procgroup only wraps *exec.Cmd with process-group teardown; it never
// starts anything itself.
func allowedExecImporter(pkgPath string) bool {
	return strings.HasSuffix(pkgPath, "/internal/filemover") ||
		strings.HasSuffix(pkgPath, "/internal/procgroup")
}
