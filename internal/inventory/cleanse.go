// SPDX-License-Identifier: MIT

package inventory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Blacklist names files and directories that are noise in distributed
// archives (platform droppings, tracker tags, player databases) and must
// not survive intake. Matching is case-insensitive on the basename.
type Blacklist struct {
	Basename []string `yaml:"basename"`
	Dirname  []string `yaml:"dirname"`

	files map[string]struct{}
	dirs  map[string]struct{}
}

// LoadBlacklist reads a blacklist YAML file. An empty path yields an empty
// blacklist, which bans nothing.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{}
	if path == "" {
		bl.index()
		return bl, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: read blacklist: %w", err)
	}
	if err := yaml.Unmarshal(raw, bl); err != nil {
		return nil, fmt.Errorf("inventory: parse blacklist: %w", err)
	}
	bl.index()
	return bl, nil
}

func (b *Blacklist) index() {
	b.files = make(map[string]struct{}, len(b.Basename))
	for _, name := range b.Basename {
		b.files[strings.ToLower(name)] = struct{}{}
	}
	b.dirs = make(map[string]struct{}, len(b.Dirname))
	for _, name := range b.Dirname {
		b.dirs[strings.ToLower(name)] = struct{}{}
	}
}

// BanList walks root and returns the banned directories and files under it,
// as absolute paths. A banned directory covers everything beneath it, so
// its contents are not listed separately.
func (b *Blacklist) BanList(root string) (dirs, files []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		name := strings.ToLower(d.Name())
		if d.IsDir() {
			if _, ok := b.dirs[name]; ok {
				dirs = append(dirs, path)
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := b.files[name]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: scan %s: %w", root, err)
	}
	return dirs, files, nil
}

var upperExt = regexp.MustCompile(`\.[A-Z]+$`)

// ExtensionFixes returns source/destination rename pairs lowering fully
// uppercase extensions (KICK.WAV -> KICK.wav). Mixed-case extensions are
// left alone.
func ExtensionFixes(root string) ([][2]string, error) {
	var pairs [][2]string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := upperExt.FindString(d.Name())
		if ext == "" {
			return nil
		}
		fixed := strings.TrimSuffix(d.Name(), ext) + strings.ToLower(ext)
		pairs = append(pairs, [2]string{path, filepath.Join(filepath.Dir(path), fixed)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: scan %s: %w", root, err)
	}
	return pairs, nil
}
