// Package probe answers availability questions about the remote archive
// without downloading anything.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/downloader"
	"github.com/brensch/gdelthelper/internal/period"
	"github.com/brensch/gdelthelper/internal/util"
)

// Probe issues HEAD requests against the archive base URL.
type Probe struct {
	baseURL  string
	indexURL string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	// Now is the clock the backward scan starts from.
	Now func() time.Time
}

// New builds a Probe from cfg. client may be nil.
func New(cfg config.Config, client *http.Client, logger *slog.Logger) *Probe {
	if client == nil {
		client = util.DefaultHTTPClient(cfg.RequestTimeout)
	}
	p := &Probe{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/") + "/",
		indexURL: cfg.IndexURL,
		client:   client,
		logger:   logger,
		Now:      time.Now,
	}
	if p.indexURL == "" {
		p.indexURL = p.baseURL + "index.html"
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Exists reports whether any archive candidate for period p answers a HEAD
// request with 200. Errors count as absent.
func (p *Probe) Exists(ctx context.Context, tok string) bool {
	for _, name := range downloader.Candidates(tok) {
		if ctx.Err() != nil {
			return false
		}
		ok, err := p.head(ctx, p.baseURL+name)
		if err != nil {
			p.logger.Debug("HEAD failed.", slog.String("archive", name), "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (p *Probe) head(ctx context.Context, url string) (bool, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	util.DecorateRequest(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// DetectLatestAvailableYear walks back one day at a time from today (UTC),
// up to maxBackDays days, and returns the year of the first day that
// exists remotely. If none does, or ctx ends, the current year is returned.
func (p *Probe) DetectLatestAvailableYear(ctx context.Context, maxBackDays int) int {
	today := p.Now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i <= maxBackDays; i++ {
		if ctx.Err() != nil {
			p.logger.Warn("Latest-year detection cancelled.", slog.Int("days_checked", i))
			break
		}
		day := today.AddDate(0, 0, -i)
		if p.Exists(ctx, util.CompactDate(day)) {
			p.logger.Info("Latest available day found.", slog.String("day", util.CompactDate(day)), slog.Int("days_back", i))
			return day.Year()
		}
	}
	p.logger.Info("No available day in window, using current year.", slog.Int("max_back_days", maxBackDays))
	return today.Year()
}

// SelectableYears returns FirstYear..latest ascending.
func SelectableYears(latest int) []int {
	if latest < period.FirstYear {
		return nil
	}
	out := make([]int, 0, latest-period.FirstYear+1)
	for y := period.FirstYear; y <= latest; y++ {
		out = append(out, y)
	}
	return out
}

// ListRemote fetches the index page and returns the archive names it
// links to, sorted.
func (p *Probe) ListRemote(ctx context.Context) ([]string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create index request: %w", err)
	}
	util.DecorateRequest(req)
	body, err := util.DownloadFile(p.client, req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index HTML: %w", err)
	}
	links := util.ParseLinks(root, ".zip")
	sort.Strings(links)
	p.logger.Debug("Remote index listed.", slog.Int("archives", len(links)))
	return links, nil
}

// Coverage splits the periods of year into those published according to
// the remote listing and those missing from it.
func Coverage(year int, remote []string) (published, missing []string) {
	have := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		have[name] = struct{}{}
	}
	for _, tok := range period.Enumerate(year) {
		found := false
		for _, c := range downloader.Candidates(tok) {
			if _, ok := have[c]; ok {
				found = true
				break
			}
		}
		if found {
			published = append(published, tok)
		} else {
			missing = append(missing, tok)
		}
	}
	return published, missing
}
