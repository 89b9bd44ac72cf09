// SPDX-License-Identifier: MIT

package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Confine verifies that target, after symlink resolution, lies physically
// under root, and returns the resolved path. Every destructive file-mover
// operation passes its target through here so a malformed task cannot reach
// outside the catalog roots.
func Confine(root, target string) (string, error) {
	if strings.Contains(target, "\\") {
		return "", fmt.Errorf("fsutil: path contains backslash: %s", target)
	}
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("fsutil: target must be absolute: %s", target)
	}
	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return resolveWithin(realRoot, filepath.Clean(target))
}

// ConfineRel joins rel onto root and verifies the result stays under root.
// The intake and survey walks use this for paths assembled from external
// directory names.
func ConfineRel(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("fsutil: path contains backslash: %s", rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("fsutil: target must be relative: %s", rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path traversal attempt: %s", rel)
	}
	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return resolveWithin(realRoot, filepath.Join(realRoot, clean))
}

func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: invalid root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}
	return realRoot, nil
}

// resolveWithin resolves fullPath's symlinks and checks containment. A path
// that does not exist yet is checked through its nearest existing parent, so
// move destinations validate before they are created.
func resolveWithin(realRoot, fullPath string) (string, error) {
	var realPath string
	if _, err := os.Lstat(fullPath); err == nil {
		realPath, err = filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("fsutil: resolve %s: %w", fullPath, err)
		}
	} else {
		dir := filepath.Dir(fullPath)
		if rp, err := filepath.EvalSymlinks(dir); err == nil {
			realPath = filepath.Join(rp, filepath.Base(fullPath))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("fsutil: resolve parent of %s: %w", fullPath, err)
		} else {
			realPath = fullPath
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("fsutil: containment check: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root: %s", realPath)
	}
	return realPath, nil
}
