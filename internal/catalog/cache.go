// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"strings"
)

// Cached lookups for the three hot mappings: extension to filetype id,
// label name to id, asset id to cname. Populated lazily; writes through the
// store invalidate the affected entries.

func lowerExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// CachedFiletypeID resolves an extension through the cache.
func (s *Store) CachedFiletypeID(ctx context.Context, ext string) (int64, error) {
	key := lowerExt(ext)
	s.mu.Lock()
	if id, ok := s.filetypes[key]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	id, err := s.FiletypeID(ctx, key)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.filetypes[key] = id
	s.mu.Unlock()
	return id, nil
}

// CachedLabelID resolves a label name through the cache.
func (s *Store) CachedLabelID(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	if id, ok := s.labels[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	id, err := s.LabelIDByName(ctx, name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.labels[name] = id
	s.mu.Unlock()
	return id, nil
}

// CachedCname resolves an asset id to its cname through the cache.
func (s *Store) CachedCname(ctx context.Context, assetID int64) (string, error) {
	s.mu.Lock()
	if cname, ok := s.cnames[assetID]; ok {
		s.mu.Unlock()
		return cname, nil
	}
	s.mu.Unlock()

	a, err := s.AssetData(ctx, assetID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.cnames[assetID] = a.Cname
	s.mu.Unlock()
	return a.Cname, nil
}

func (s *Store) invalidateAsset(assetID int64) {
	s.mu.Lock()
	delete(s.cnames, assetID)
	s.mu.Unlock()
}

func (s *Store) invalidateLabel(name string) {
	s.mu.Lock()
	delete(s.labels, name)
	s.mu.Unlock()
}
