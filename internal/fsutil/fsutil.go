// SPDX-License-Identifier: MIT

// Package fsutil carries the filesystem primitives shared by the file mover
// and the batch commands: root confinement for destructive operations, and
// copy/move helpers that survive filesystem boundaries (the intake tree and
// the scratch directory routinely live on different mounts).
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies a regular file, preserving its mode. The destination
// directory must exist.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("fsutil: copy %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("fsutil: copy %s: not a regular file", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: copy %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("fsutil: copy to %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("fsutil: copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("fsutil: copy to %s: %w", dst, err)
	}
	return nil
}

// CopyTree copies a directory tree. Symlinks inside the tree are skipped;
// assets are plain files and anything else has no business being archived.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("fsutil: copy tree: %w", err)
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("fsutil: copy tree: %w", err)
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("fsutil: copy tree: %w", err)
			}
		case d.Type()&os.ModeSymlink != 0:
			return nil
		default:
			if err := CopyFile(path, target); err != nil {
				return err
			}
		}
		return nil
	})
}

// MoveAll moves a file or directory. Rename is tried first; when it fails
// (typically a cross-device link), the tree is copied and the source removed.
func MoveAll(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fsutil: move %s: %w", src, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("fsutil: move %s: %w", src, err)
	}
	if info.IsDir() {
		if err := CopyTree(src, dst); err != nil {
			return err
		}
	} else {
		if err := CopyFile(src, dst); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("fsutil: move %s: remove source: %w", src, err)
	}
	return nil
}

// IsRegularFile reports an error unless path names an existing regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("fsutil: not a regular file: %s", path)
	}
	return nil
}

// DirExists reports whether path names an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
