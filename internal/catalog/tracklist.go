// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jdswan/sonicat/internal/task"
)

var discDirRe = regexp.MustCompile(`(?i)^(cd|disc)[ _-]?(\d+)$`)

// TrackList returns an asset's audio files of one extension in release
// order: disc directories first (CD1 before CD2), then the numeric leading
// index of the basename, then the basename itself. This is the order
// metadata validation zips against a provider tracklist.
func (s *Store) TrackList(ctx context.Context, assetID int64, ext string) ([]task.FileData, error) {
	files, err := s.FileDataByAssetAndType(ctx, assetID, ext)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		di, dj := discNumber(files[i].Dirname), discNumber(files[j].Dirname)
		if di != dj {
			return di < dj
		}
		if files[i].Dirname != files[j].Dirname {
			return files[i].Dirname < files[j].Dirname
		}
		ni, iOK := leadingIndex(files[i].Basename)
		nj, jOK := leadingIndex(files[j].Basename)
		if iOK && jOK && ni != nj {
			return ni < nj
		}
		if iOK != jOK {
			return iOK
		}
		return files[i].Basename < files[j].Basename
	})
	return files, nil
}

// IsMultidisc reports whether the files span more than one disc directory.
func IsMultidisc(files []task.FileData) bool {
	seen := map[int]bool{}
	for _, fd := range files {
		if n := discNumber(fd.Dirname); n > 0 {
			seen[n] = true
		}
	}
	return len(seen) > 1
}

// discNumber extracts the disc ordinal from the innermost path element of
// a dirname, or 0 when the file does not sit in a disc directory.
func discNumber(dirname string) int {
	if dirname == "" {
		return 0
	}
	m := discDirRe.FindStringSubmatch(path.Base(dirname))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0
	}
	return n
}

// leadingIndex parses a track number prefix ("01 Kick.wav", "2-Snare.wav").
func leadingIndex(basename string) (int, bool) {
	i := 0
	for i < len(basename) && basename[i] >= '0' && basename[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 {
		return 0, false
	}
	rest := basename[i:]
	if rest != "" && !strings.ContainsRune(" .-_)", rune(rest[0])) {
		return 0, false
	}
	n, err := strconv.Atoi(basename[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
