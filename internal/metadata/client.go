// SPDX-License-Identifier: MIT

// Package metadata implements the discogs and lastfm workers. Each holds a
// throttled client pinned to its provider's host, walks a ladder of search
// variants derived from the asset's cname, and accepts the first release
// whose track durations corroborate the measured ones. A search that
// exhausts the ladder is a validation failure; the app_data funnel records
// it in the provider's failed-search ledger so the asset is not re-queried.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jdswan/sonicat/internal/names"
	"github.com/jdswan/sonicat/internal/platform/httpx"
	platformnet "github.com/jdswan/sonicat/internal/platform/net"
)

// resultCap bounds how many search hits are inspected per query variant.
const resultCap = 20

// durationTolerance is the per-track slack, in seconds, when corroborating
// a candidate tracklist against measured durations.
const durationTolerance = 2.0

// maxResponseBytes caps a provider response body.
const maxResponseBytes = 4 << 20

// Query is one search variant. Artist and Publisher carry the asset's
// label when the variant constrains on it; Year is the cname note when it
// reads as a four-digit year.
type Query struct {
	Title     string
	Artist    string
	Publisher string
	Year      string
}

// SearchPlan expands a cname into the ordered query ladder: label as
// artist, label as publisher, unconstrained, then the label variants again
// narrowed by year. Each variant whose title carries a media-type label
// (CD/EP/LP markers) is followed by a retry with the markers stripped.
// Variants that collapse to an identical query are emitted once.
func SearchPlan(cname string) []Query {
	label, title, note := names.Divide(cname)
	year := names.Year(note)
	bases := []Query{
		{Artist: label},
		{Publisher: label},
		{},
		{Artist: label, Year: year},
		{Publisher: label, Year: year},
	}
	trimmed := ""
	if names.HasMediaLabel(title) {
		trimmed = names.TrimMediaLabels(title)
	}

	plan := make([]Query, 0, 2*len(bases))
	seen := make(map[Query]bool)
	add := func(q Query) {
		if !seen[q] {
			seen[q] = true
			plan = append(plan, q)
		}
	}
	for _, base := range bases {
		q := base
		q.Title = title
		add(q)
		if trimmed != "" && trimmed != title {
			q.Title = trimmed
			add(q)
		}
	}
	return plan
}

// ValidateDurations reports whether a candidate tracklist corroborates the
// measured durations: same track count, a nonzero candidate total, and
// every measured duration within the tolerance of its candidate track.
func ValidateDurations(measured []float64, candidate []int) bool {
	if len(measured) != len(candidate) {
		return false
	}
	sum := 0
	for _, d := range candidate {
		sum += d
	}
	if sum == 0 {
		return false
	}
	for i, m := range measured {
		lo := float64(candidate[i]) - durationTolerance
		hi := float64(candidate[i]) + durationTolerance
		if m < lo || m > hi {
			return false
		}
	}
	return true
}

// safeCoverURL keeps a provider-supplied cover URL only when it parses as
// a plain direct HTTP(S) URL.
func safeCoverURL(raw string) string {
	if raw == "" {
		return ""
	}
	if _, ok := platformnet.ParseDirectHTTPURL(raw); !ok {
		return ""
	}
	return raw
}

// dedupe removes repeats, keeping first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fetcher is the throttled, policy-checked JSON GET shared by the provider
// clients. One fetcher per client process; the limiter spaces every call,
// search and detail alike.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	policy  platformnet.OutboundPolicy
	logger  zerolog.Logger
}

func newFetcher(baseURL string, every time.Duration, logger zerolog.Logger) (*fetcher, error) {
	policy, err := platformnet.PolicyForBase(baseURL)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return &fetcher{
		client:  httpx.NewClient(0),
		limiter: rate.NewLimiter(rate.Every(every), 1),
		policy:  policy,
		logger:  logger,
	}, nil
}

// getJSON performs one throttled GET against a policy-validated URL and
// decodes the body into dst. Logged URLs are sanitized; tokens ride in
// query strings.
func (f *fetcher) getJSON(ctx context.Context, rawURL string, headers map[string]string, dst any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	validated, err := platformnet.ValidateOutboundURL(ctx, rawURL, f.policy)
	if err != nil {
		return fmt.Errorf("outbound %s: %w", platformnet.SanitizeURL(rawURL), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validated, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	f.logger.Debug().Str("url", platformnet.SanitizeURL(validated)).Msg("provider call")
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", platformnet.SanitizeURL(validated), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", platformnet.SanitizeURL(validated), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", platformnet.SanitizeURL(validated), err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", platformnet.SanitizeURL(validated), err)
	}
	return nil
}
