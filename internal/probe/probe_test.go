package probe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/gdelthelper/internal/config"
)

func newTestProbe(t *testing.T, h http.HandlerFunc, now time.Time) *Probe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.Default(now)
	cfg.BaseURL = srv.URL + "/events/"
	cfg.IndexURL = srv.URL + "/events/index.html"
	p := New(cfg, srv.Client(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	p.Now = func() time.Time { return now }
	return p
}

func TestExists_TriesEachCandidate(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	p := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.URL.Path == "/events/2001.zip" {
			return
		}
		http.NotFound(w, r)
	}, time.Now())

	assert.True(t, p.Exists(context.Background(), "2001"))
	mu.Lock()
	assert.Equal(t, []string{http.MethodHead, http.MethodHead}, methods)
	mu.Unlock()
	assert.False(t, p.Exists(context.Background(), "2002"))
}

func TestDetectLatestAvailableYear_WalksBack(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	var checked atomic.Int64
	p := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		checked.Add(1)
		if r.URL.Path == "/events/20251230.export.CSV.zip" {
			return
		}
		http.NotFound(w, r)
	}, now)

	assert.Equal(t, 2025, p.DetectLatestAvailableYear(context.Background(), 10))
	// 0102, 0101 and 1231 fail on both candidates, 1230 hits on the first.
	assert.EqualValues(t, 7, checked.Load())
}

func TestDetectLatestAvailableYear_FallsBackToCurrentYear(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := newTestProbe(t, http.NotFound, now)
	assert.Equal(t, 2026, p.DetectLatestAvailableYear(context.Background(), 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 2026, p.DetectLatestAvailableYear(ctx, 540))
}

func TestListRemoteAndCoverage(t *testing.T) {
	page := `<html><body><ul>
<li><a href="20140101.export.CSV.zip">20140101.export.CSV.zip</a></li>
<li><a href="20140103.export.CSV.zip">20140103.export.CSV.zip</a></li>
<li><a href="md5sums">md5sums</a></li>
<li><a href="2001.zip">2001.zip</a></li>
</ul></body></html>`
	p := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/index.html", r.URL.Path)
		w.Write([]byte(page))
	}, time.Now())

	names, err := p.ListRemote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2001.zip", "20140101.export.CSV.zip", "20140103.export.CSV.zip"}, names)

	published, missing := Coverage(2014, names)
	assert.Equal(t, []string{"20140101", "20140103"}, published)
	assert.Len(t, missing, 363)
	assert.True(t, strings.HasPrefix(missing[0], "20140102"))

	published, _ = Coverage(2001, names)
	assert.Equal(t, []string{"2001"}, published)
}

func TestSelectableYears(t *testing.T) {
	years := SelectableYears(1981)
	assert.Equal(t, []int{1979, 1980, 1981}, years)
	assert.Nil(t, SelectableYears(1900))
}
