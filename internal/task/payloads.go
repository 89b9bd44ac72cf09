// SPDX-License-Identifier: MIT

package task

// FileAnalysis carries one file's measured audio features. Duration and
// Tempo are decimal strings (3 and 1 places); BeatsPath is the artifact
// path relative to the data root; Chroma is the 12-channel distribution.
type FileAnalysis struct {
	FileID    int64     `json:"file_id"`
	Duration  string    `json:"duration,omitempty"`
	Tempo     string    `json:"tempo,omitempty"`
	BeatsPath string    `json:"beats_path,omitempty"`
	Chroma    []float64 `json:"chroma,omitempty"`
}

// FileParse is one audio path's parse: split-off tempo and key plus the
// surviving linguistic tokens.
type FileParse struct {
	FileID int64    `json:"file_id"`
	Tempo  string   `json:"tempo,omitempty"`
	Key    string   `json:"key,omitempty"`
	Tokens []string `json:"tokens,omitempty"`
}

// CueTrack is one TRACK entry of a parsed cue sheet. Index is the INDEX 01
// timestamp in mm:ss:ff form (75 frames per second).
type CueTrack struct {
	Number    int    `json:"number"`
	Title     string `json:"title,omitempty"`
	Performer string `json:"performer,omitempty"`
	Index     string `json:"index,omitempty"`
}

// CueSheet is one parsed cue file. FileID is the catalog id of the cue
// file itself; AudioFile names the audio file the sheet indexes.
type CueSheet struct {
	FileID    int64      `json:"file_id"`
	Title     string     `json:"title,omitempty"`
	Performer string     `json:"performer,omitempty"`
	AudioFile string     `json:"audio_file,omitempty"`
	Tracks    []CueTrack `json:"tracks"`
}

// TrackMatch is one track of an accepted metadata result, tied to the
// catalog file whose measured duration validated it.
type TrackMatch struct {
	FileID   int64    `json:"file_id"`
	Title    string   `json:"title"`
	Duration int      `json:"duration,omitempty"` // seconds
	Tags     []string `json:"tags,omitempty"`
}

// AlbumMatch is an accepted metadata search result for one asset.
type AlbumMatch struct {
	Title    string       `json:"title"`
	Year     string       `json:"year,omitempty"`
	Country  string       `json:"country,omitempty"`
	CoverURL string       `json:"cover_url,omitempty"`
	SourceID string       `json:"source_id,omitempty"` // provider release id
	Tags     []string     `json:"tags,omitempty"`
	Formats  []string     `json:"formats,omitempty"`
	Tracks   []TrackMatch `json:"tracks,omitempty"`
}

// PageResult is one tracker search hit. Size is normalized to megabytes.
type PageResult struct {
	Name      string   `json:"name"`
	SiteID    string   `json:"site_id"`
	Size      string   `json:"size,omitempty"`
	Downloads string   `json:"downloads,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}
