// SPDX-License-Identifier: MIT

package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

// LastfmBaseURL is the production API endpoint.
const LastfmBaseURL = "https://ws.audioscrobbler.com/2.0/"

const lastfmWait = time.Second

// Lastfm drives the Last.fm web API: album.search for candidates,
// album.getinfo for tracklists. The search endpoint matches album names
// only, so label and year constraints are applied client-side.
type Lastfm struct {
	base    string
	secrets config.LastfmSecrets
	fetch   *fetcher
}

// NewLastfm builds the client. baseURL is LastfmBaseURL in production;
// tests point it at a stub server.
func NewLastfm(baseURL string, secrets config.LastfmSecrets) (*Lastfm, error) {
	logger := log.WithComponent(config.AppLastfm)
	fetch, err := newFetcher(baseURL, lastfmWait, logger)
	if err != nil {
		return nil, err
	}
	return &Lastfm{
		base:    baseURL,
		secrets: secrets,
		fetch:   fetch,
	}, nil
}

// Name implements Provider.
func (l *Lastfm) Name() string {
	return config.AppLastfm
}

type lastfmImage struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

type lastfmSearchResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Results struct {
		AlbumMatches struct {
			Album []struct {
				Name   string        `json:"name"`
				Artist string        `json:"artist"`
				Image  []lastfmImage `json:"image"`
			} `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

// Search implements Provider. A variant's artist or publisher constraint
// keeps only results whose artist matches the label; year constraints are
// not expressible against this API and pass through unfiltered.
func (l *Lastfm) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("method", "album.search")
	params.Set("album", q.Title)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("format", "json")
	if l.secrets.APIKey != "" {
		params.Set("api_key", l.secrets.APIKey)
	}

	var decoded lastfmSearchResponse
	if err := l.fetch.getJSON(ctx, l.base+"?"+params.Encode(), l.headers(), &decoded); err != nil {
		return nil, err
	}
	if decoded.Error != 0 {
		return nil, fmt.Errorf("lastfm error %d: %s", decoded.Error, decoded.Message)
	}

	wantArtist := strings.ToLower(firstNonEmpty(q.Artist, q.Publisher))
	var candidates []Candidate
	for _, album := range decoded.Results.AlbumMatches.Album {
		if len(candidates) == limit {
			break
		}
		if wantArtist != "" && strings.ToLower(album.Artist) != wantArtist {
			continue
		}
		candidates = append(candidates, Candidate{
			Title:    album.Name,
			Artist:   album.Artist,
			CoverURL: safeCoverURL(coverFromImages(album.Image)),
		})
	}
	return candidates, nil
}

type lastfmInfoResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Album   struct {
		Name   string        `json:"name"`
		Artist string        `json:"artist"`
		Image  []lastfmImage `json:"image"`
		Tracks struct {
			Track lastfmTracks `json:"track"`
		} `json:"tracks"`
		Tags struct {
			Tag lastfmTags `json:"tag"`
		} `json:"tags"`
	} `json:"album"`
}

// Album implements Provider: album.getinfo keyed by (artist, album name).
// Track durations arrive in seconds.
func (l *Lastfm) Album(ctx context.Context, c Candidate) (task.AlbumMatch, error) {
	params := url.Values{}
	params.Set("method", "album.getinfo")
	params.Set("artist", c.Artist)
	params.Set("album", c.Title)
	params.Set("format", "json")
	if l.secrets.APIKey != "" {
		params.Set("api_key", l.secrets.APIKey)
	}

	var decoded lastfmInfoResponse
	if err := l.fetch.getJSON(ctx, l.base+"?"+params.Encode(), l.headers(), &decoded); err != nil {
		return task.AlbumMatch{}, err
	}
	if decoded.Error != 0 {
		return task.AlbumMatch{}, fmt.Errorf("lastfm error %d: %s", decoded.Error, decoded.Message)
	}

	match := task.AlbumMatch{
		Title:    firstNonEmpty(decoded.Album.Name, c.Title),
		Country:  c.Country,
		CoverURL: firstNonEmpty(safeCoverURL(coverFromImages(decoded.Album.Image)), c.CoverURL),
		SourceID: c.SourceID,
	}
	for _, tag := range decoded.Album.Tags.Tag {
		if keepTag(tag.Name) {
			match.Tags = append(match.Tags, tag.Name)
		}
	}
	match.Tags = dedupe(match.Tags)
	for _, tr := range decoded.Album.Tracks.Track {
		match.Tracks = append(match.Tracks, task.TrackMatch{
			Title:    tr.Name,
			Duration: int(tr.Duration),
		})
	}
	return match, nil
}

func (l *Lastfm) headers() map[string]string {
	h := map[string]string{}
	if l.secrets.UserAgent != "" {
		h["User-Agent"] = l.secrets.UserAgent
	}
	return h
}

// coverFromImages picks the largest image; the API lists sizes ascending.
func coverFromImages(images []lastfmImage) string {
	cover := ""
	for _, img := range images {
		if img.URL != "" {
			cover = img.URL
		}
	}
	return cover
}

// ignoreTagRes drop community-noise tags ("albums you must listen to",
// "own it on vinyl", "favorites") before recording.
var ignoreTagRes = []*regexp.Regexp{
	regexp.MustCompile(`\bown\b`),
	regexp.MustCompile(`\blisten\b`),
	regexp.MustCompile(`\byou (must|should|have)\b`),
	regexp.MustCompile(`^favorites?$`),
}

func keepTag(name string) bool {
	if name == "" {
		return false
	}
	lowered := strings.ToLower(name)
	for _, re := range ignoreTagRes {
		if re.MatchString(lowered) {
			return false
		}
	}
	return true
}

type lastfmTrack struct {
	Name     string      `json:"name"`
	Duration flexSeconds `json:"duration"`
}

// lastfmTracks tolerates the API quirk of a single track arriving as an
// object instead of a one-element array.
type lastfmTracks []lastfmTrack

func (ts *lastfmTracks) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single lastfmTrack
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*ts = lastfmTracks{single}
		return nil
	}
	var many []lastfmTrack
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*ts = many
	return nil
}

type lastfmTag struct {
	Name string `json:"name"`
}

// lastfmTags tolerates the same single-object quirk as lastfmTracks.
type lastfmTags []lastfmTag

func (ts *lastfmTags) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single lastfmTag
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*ts = lastfmTags{single}
		return nil
	}
	var many []lastfmTag
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*ts = many
	return nil
}

// flexSeconds decodes a duration that arrives as a number, a numeric
// string, or null.
type flexSeconds int

func (s *flexSeconds) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*s = 0
		return nil
	}
	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*s = 0
			return nil
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return fmt.Errorf("bad duration %q", str)
		}
		*s = flexSeconds(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*s = flexSeconds(int(n))
	return nil
}
