// SPDX-License-Identifier: MIT

package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

func newTestScraper(t *testing.T, secrets config.RutrackerSecrets, handler http.HandlerFunc) *Scraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tracker, err := NewRutracker(srv.URL, secrets)
	require.NoError(t, err)
	tracker.limiter.SetLimit(rate.Inf)
	return NewScraper(tracker)
}

func scrapeTask() *task.Task {
	var maker task.Maker
	tk := maker.Make(config.AppRutracker, config.ActionSearch, task.Args{
		Catalog: "main",
		AssetID: 42,
		Cname:   "Acme Records - Neon Nights (2004)",
	})
	return &tk
}

func trackerRow(topicID, name string, tags ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<tr data-topic_id=%q><td class="t-title-col"><div class="t-title"><a href="viewtopic.php?t=%s">%s</a></div><div class="t-tags">`, topicID, topicID, name)
	for _, tag := range tags {
		fmt.Fprintf(&b, `<span class="tg">%s</span>`, tag)
	}
	b.WriteString(`</div></td><td class="tor-size"><a>700&nbsp;MB ↓</a></td><td class="number-format">5</td></tr>`)
	return b.String()
}

func trackerPage(extra string, rows ...string) string {
	return `<html><body>` + extra +
		`<div id="search-results"><table><tbody>` + strings.Join(rows, "") + `</tbody></table></div>` +
		`</body></html>`
}

func TestScraperMatchesTitleTokens(t *testing.T) {
	var paths, queries []string
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		queries = append(queries, r.URL.Query().Get("nm"))
		fmt.Fprint(rw, trackerPage("",
			trackerRow("100", "(Trance) Acme Records - Neon Nights - 2004, FLAC (tracks), lossless", "trance"),
			trackerRow("200", "Other Artist - Something Else", "house"),
		))
	})

	tk := scrapeTask()
	require.NoError(t, w.RunTask(context.Background(), tk))

	require.Equal(t, []string{"/forum/tracker.php", "/forum/tracker.php"}, paths)
	require.Equal(t, []string{
		"Acme Records Neon Nights (2004)",
		"Acme Records Neon Nights (2004) flac",
	}, queries)

	var pages []task.PageResult
	require.NoError(t, tk.ResultPayload(task.PayloadPages, &pages))
	require.Len(t, pages, 1) // row 100 deduped across the two queries
	require.Equal(t, "100", pages[0].SiteID)
	require.Equal(t, []string{"trance"}, pages[0].Tags)
	require.Equal(t, "700", pages[0].Size)
	require.Equal(t, "5", pages[0].Downloads)
}

func TestScraperFollowsPageLinks(t *testing.T) {
	pagination := `<p class="small"><a class="pg" href="tracker.php?nm=acme&amp;start=50">2</a></p>`
	var sawStart int
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "50" {
			sawStart++
			fmt.Fprint(rw, trackerPage("", trackerRow("300", "Acme Records - Neon Nights Bonus Disc")))
			return
		}
		fmt.Fprint(rw, trackerPage(pagination, trackerRow("100", "Acme Records - Neon Nights")))
	})

	tk := scrapeTask()
	require.NoError(t, w.RunTask(context.Background(), tk))
	require.Equal(t, 2, sawStart) // one continuation per query

	var pages []task.PageResult
	require.NoError(t, tk.ResultPayload(task.PayloadPages, &pages))
	require.Len(t, pages, 2)
	require.Equal(t, "100", pages[0].SiteID)
	require.Equal(t, "300", pages[1].SiteID)
}

func TestScraperTrimsMediaLabelsForMatching(t *testing.T) {
	var queries []string
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("nm"))
		fmt.Fprint(rw, trackerPage("",
			trackerRow("100", "VA - Club Hits Collection - 2004, FLAC, lossless"),
		))
	})

	var maker task.Maker
	tk := maker.Make(config.AppRutracker, config.ActionSearch, task.Args{
		Catalog: "main",
		AssetID: 7,
		Cname:   "Acme - Club Hits CD1 (2004)",
	})
	require.NoError(t, w.RunTask(context.Background(), &tk))

	// Matching drops the media label; the query itself rides verbatim.
	require.Equal(t, "Acme Club Hits CD1 (2004)", queries[0])
	var pages []task.PageResult
	require.NoError(t, tk.ResultPayload(task.PayloadPages, &pages))
	require.Len(t, pages, 1)
}

func TestScraperNoMatchIsValidation(t *testing.T) {
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		fmt.Fprint(rw, trackerPage("", trackerRow("200", "Other Artist - Something Else")))
	})

	tk := scrapeTask()
	err := w.RunTask(context.Background(), tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
	require.Empty(t, tk.Results)
}

func TestScraperServerErrorIsExternal(t *testing.T) {
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "maintenance", http.StatusServiceUnavailable)
	})

	err := w.RunTask(context.Background(), scrapeTask())
	require.Error(t, err)
	require.Equal(t, task.KindExternal, task.KindOf(err))
}

func TestScraperSessionLoginOnce(t *testing.T) {
	var logins int
	var uname, passwd string
	w := newTestScraper(t, config.RutrackerSecrets{Uname: "digger", Passwd: "sekrit"}, func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/forum/login.php" {
			logins++
			if err := r.ParseForm(); err == nil {
				uname = r.PostForm.Get("login_username")
				passwd = r.PostForm.Get("login_password")
			}
			return
		}
		fmt.Fprint(rw, trackerPage("", trackerRow("100", "Acme Records - Neon Nights")))
	})

	require.NoError(t, w.RunTask(context.Background(), scrapeTask()))
	require.NoError(t, w.RunTask(context.Background(), scrapeTask()))
	require.Equal(t, 1, logins)
	require.Equal(t, "digger", uname)
	require.Equal(t, "sekrit", passwd)
}

func TestScraperForeignAppPassesThrough(t *testing.T) {
	var calls int
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		calls++
	})

	var maker task.Maker
	tk := maker.Make(config.AppDiscogs, config.ActionSearch, task.Args{Catalog: "main"})
	require.NoError(t, w.RunTask(context.Background(), &tk))
	require.Zero(t, calls)
	require.Empty(t, tk.Results)
	require.Nil(t, tk.Result)
}

func TestScraperRejectsUnknownAction(t *testing.T) {
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {})
	var maker task.Maker
	tk := maker.Make(config.AppRutracker, "harvest", task.Args{Catalog: "main"})

	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestScraperRequiresCname(t *testing.T) {
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {})
	var maker task.Maker
	tk := maker.Make(config.AppRutracker, config.ActionSearch, task.Args{Catalog: "main", AssetID: 42})

	err := w.RunTask(context.Background(), &tk)
	require.Error(t, err)
	require.Equal(t, task.KindValidation, task.KindOf(err))
}

func TestScraperHonorsCancellation(t *testing.T) {
	var calls int
	w := newTestScraper(t, config.RutrackerSecrets{}, func(rw http.ResponseWriter, r *http.Request) {
		calls++
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.RunTask(ctx, scrapeTask())
	require.Error(t, err)
	require.Equal(t, task.KindExternal, task.KindOf(err))
	require.Zero(t, calls)
}

func TestScraperThrottleRate(t *testing.T) {
	tracker, err := NewRutracker(RutrackerBaseURL, config.RutrackerSecrets{})
	require.NoError(t, err)
	require.Equal(t, rate.Every(10*time.Second), tracker.limiter.Limit())
}
