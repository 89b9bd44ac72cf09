// SPDX-License-Identifier: MIT

// Package scrape implements the rutracker_scraper worker. It queries the
// tracker's search endpoint with an asset's cname, walks the result pages,
// and keeps the rows whose names cover the asset's title tokens. Matched
// rows travel to the app_data funnel as page results; a query with no
// matches is a validation failure and lands in the scraper's failed-search
// ledger.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/platform/httpx"
	platformnet "github.com/jdswan/sonicat/internal/platform/net"
	"github.com/jdswan/sonicat/internal/task"
)

// RutrackerBaseURL is the production tracker origin.
const RutrackerBaseURL = "https://rutracker.org"

// rutrackerWait spaces page fetches. The tracker bans aggressive crawlers;
// one page per ten seconds stays under its radar.
const rutrackerWait = 10 * time.Second

// maxResponseBytes caps how much of a tracker page is read. Result pages
// run a few hundred kilobytes.
const maxResponseBytes = 4 << 20

// Rutracker fetches and parses tracker search pages. One instance per
// process; the limiter spaces every fetch, login and pagination alike.
type Rutracker struct {
	base    string
	secrets config.RutrackerSecrets
	client  *http.Client
	limiter *rate.Limiter
	policy  platformnet.OutboundPolicy
	logger  zerolog.Logger

	session sync.Once
}

// NewRutracker builds the tracker client. Credentials are optional: the
// tracker serves anonymous searches with some forums hidden, so a missing
// login degrades coverage rather than failing the worker.
func NewRutracker(baseURL string, secrets config.RutrackerSecrets) (*Rutracker, error) {
	policy, err := platformnet.PolicyForBase(baseURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: cookie jar: %w", err)
	}
	client := httpx.NewClient(0)
	client.Jar = jar
	return &Rutracker{
		base:    strings.TrimRight(baseURL, "/"),
		secrets: secrets,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(rutrackerWait), 1),
		policy:  policy,
		logger:  log.WithComponent(config.AppRutracker),
	}, nil
}

// QueryText turns a cname into the tracker query: the label/title separator
// collapses to a plain space, everything else rides verbatim.
func QueryText(cname string) string {
	return strings.ReplaceAll(cname, " - ", " ")
}

// Search runs one tracker query and returns every result row across the
// query's result pages. The session is established lazily before the first
// search of the process.
func (r *Rutracker) Search(ctx context.Context, query string) ([]task.PageResult, error) {
	r.session.Do(func() { r.login(ctx) })

	searchURL := r.base + "/forum/tracker.php?" + url.Values{"nm": {query}}.Encode()
	doc, err := r.getPage(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	rows := ResultRows(doc)

	base, err := url.Parse(searchURL)
	if err != nil {
		return rows, nil
	}
	for _, href := range PageLinks(doc) {
		ref, err := url.Parse(href)
		if err != nil {
			r.logger.Debug().Str("href", href).Msg("unparseable page link")
			continue
		}
		doc, err := r.getPage(ctx, base.ResolveReference(ref).String())
		if err != nil {
			return nil, err
		}
		rows = append(rows, ResultRows(doc)...)
	}
	return rows, nil
}

// login posts the forum session form when credentials are configured.
// Best effort: a failed login logs a warning and the scraper continues
// anonymously.
func (r *Rutracker) login(ctx context.Context) {
	if r.secrets.Uname == "" || r.secrets.Passwd == "" {
		return
	}
	loginURL := r.base + "/forum/login.php"
	if err := r.limiter.Wait(ctx); err != nil {
		return
	}
	validated, err := platformnet.ValidateOutboundURL(ctx, loginURL, r.policy)
	if err != nil {
		r.logger.Warn().Err(err).Msg("login url rejected")
		return
	}
	form := url.Values{
		"login_username": {r.secrets.Uname},
		"login_password": {r.secrets.Passwd},
		// the forum drops the post without the submit field
		"login": {"вход"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, validated, strings.NewReader(form.Encode()))
	if err != nil {
		r.logger.Warn().Err(err).Msg("login request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Msg("login failed, scraping anonymously")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	r.logger.Info().
		Str(log.FieldEvent, "scrape.session_opened").
		Int("status", resp.StatusCode).
		Msg("forum session established")
}

// getPage performs one throttled GET against a policy-validated URL and
// parses the body as HTML.
func (r *Rutracker) getPage(ctx context.Context, rawURL string) (*html.Node, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	validated, err := platformnet.ValidateOutboundURL(ctx, rawURL, r.policy)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validated, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	r.logger.Debug().Str("url", platformnet.SanitizeURL(validated)).Msg("tracker page fetch")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: get %s: %w", platformnet.SanitizeURL(rawURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: get %s: status %d", platformnet.SanitizeURL(rawURL), resp.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("scrape: parse %s: %w", platformnet.SanitizeURL(rawURL), err)
	}
	return doc, nil
}
