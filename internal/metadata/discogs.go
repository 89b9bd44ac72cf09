// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

// DiscogsBaseURL is the production API host.
const DiscogsBaseURL = "https://api.discogs.com"

// discogsWait spaces Discogs calls; the API budgets 60 requests a minute
// per token, and the catalog is in no hurry.
const discogsWait = 2 * time.Second

// Discogs drives the Discogs database API: /database/search for
// candidates, /releases/{id} for tracklists.
type Discogs struct {
	base    string
	secrets config.DiscogsSecrets
	fetch   *fetcher
}

// NewDiscogs builds the client. baseURL is DiscogsBaseURL in production;
// tests point it at a stub server.
func NewDiscogs(baseURL string, secrets config.DiscogsSecrets) (*Discogs, error) {
	logger := log.WithComponent(config.AppDiscogs)
	fetch, err := newFetcher(baseURL, discogsWait, logger)
	if err != nil {
		return nil, err
	}
	return &Discogs{
		base:    strings.TrimSuffix(baseURL, "/"),
		secrets: secrets,
		fetch:   fetch,
	}, nil
}

// Name implements Provider.
func (d *Discogs) Name() string {
	return config.AppDiscogs
}

type discogsSearchResponse struct {
	Results []struct {
		ID         int64    `json:"id"`
		Title      string   `json:"title"`
		Year       string   `json:"year"`
		Country    string   `json:"country"`
		Genre      []string `json:"genre"`
		Style      []string `json:"style"`
		Format     []string `json:"format"`
		CoverImage string   `json:"cover_image"`
	} `json:"results"`
}

// Search implements Provider. The label rides as the artist or label
// parameter depending on the variant; genres and styles merge into one
// tag set.
func (d *Discogs) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", q.Title)
	params.Set("type", "release")
	params.Set("per_page", strconv.Itoa(limit))
	if q.Artist != "" {
		params.Set("artist", q.Artist)
	}
	if q.Publisher != "" {
		params.Set("label", q.Publisher)
	}
	if q.Year != "" {
		params.Set("year", q.Year)
	}
	if d.secrets.Token != "" {
		params.Set("token", d.secrets.Token)
	}

	var decoded discogsSearchResponse
	if err := d.fetch.getJSON(ctx, d.base+"/database/search?"+params.Encode(), d.headers(), &decoded); err != nil {
		return nil, err
	}
	results := decoded.Results
	if len(results) > limit {
		results = results[:limit]
	}
	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		tags := make([]string, 0, len(r.Genre)+len(r.Style))
		tags = append(tags, r.Genre...)
		tags = append(tags, r.Style...)
		candidates = append(candidates, Candidate{
			SourceID: strconv.FormatInt(r.ID, 10),
			Title:    r.Title,
			Year:     r.Year,
			Country:  r.Country,
			CoverURL: safeCoverURL(r.CoverImage),
			Tags:     dedupe(tags),
			Formats:  dedupe(r.Format),
		})
	}
	return candidates, nil
}

type discogsReleaseResponse struct {
	Tracklist []struct {
		Position string `json:"position"`
		Type     string `json:"type_"`
		Title    string `json:"title"`
		Duration string `json:"duration"`
	} `json:"tracklist"`
}

// Album implements Provider: one release-detail call for the tracklist.
// Heading and index rows carry no audio and are skipped.
func (d *Discogs) Album(ctx context.Context, c Candidate) (task.AlbumMatch, error) {
	params := url.Values{}
	if d.secrets.Token != "" {
		params.Set("token", d.secrets.Token)
	}
	u := d.base + "/releases/" + url.PathEscape(c.SourceID)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var decoded discogsReleaseResponse
	if err := d.fetch.getJSON(ctx, u, d.headers(), &decoded); err != nil {
		return task.AlbumMatch{}, err
	}
	match := task.AlbumMatch{
		Title:    c.Title,
		Year:     c.Year,
		Country:  c.Country,
		CoverURL: c.CoverURL,
		SourceID: c.SourceID,
		Tags:     c.Tags,
		Formats:  c.Formats,
	}
	for _, tr := range decoded.Tracklist {
		if tr.Type != "" && tr.Type != "track" {
			continue
		}
		seconds, err := clockSeconds(tr.Duration)
		if err != nil {
			return task.AlbumMatch{}, fmt.Errorf("discogs release %s: %w", c.SourceID, err)
		}
		match.Tracks = append(match.Tracks, task.TrackMatch{
			Title:    tr.Title,
			Duration: seconds,
		})
	}
	return match, nil
}

func (d *Discogs) headers() map[string]string {
	h := map[string]string{}
	if d.secrets.UserAgent != "" {
		h["User-Agent"] = d.secrets.UserAgent
	}
	return h
}

// clockSeconds parses a colon-separated clock duration ("4:31", "1:02:03")
// into seconds. Empty input is zero: the provider omits durations it does
// not know, and the zero-sum rule in ValidateDurations rejects tracklists
// with none at all.
func clockSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad clock duration %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}
