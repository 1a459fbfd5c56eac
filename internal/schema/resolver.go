package schema

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/util"
)

// ErrNoSchema means neither header definition could be obtained.
var ErrNoSchema = errors.New("no column schema available")

// Cache persists fetched header definitions between runs.
type Cache interface {
	SaveSchema(ctx context.Context, era string, columns []string) error
	LoadSchema(ctx context.Context, era string) ([]string, bool, error)
}

type resolved struct {
	schema *Schema
	err    error
}

// Resolver fetches each era's header at most once. A failed fetch falls
// back to the cache. A Resolver belongs to one run and is not safe for
// concurrent use.
type Resolver struct {
	urls   map[string]string
	client *http.Client
	cache  Cache
	logger *slog.Logger
	eras   map[string]resolved
}

// NewResolver uses cfg's header URLs. client and cache may be nil.
func NewResolver(cfg config.Config, client *http.Client, cache Cache, logger *slog.Logger) *Resolver {
	if client == nil {
		client = util.DefaultHTTPClient(cfg.RequestTimeout)
	}
	return &Resolver{
		urls: map[string]string{
			EraCurrent:    cfg.CurrentHeaderURL,
			EraHistorical: cfg.HistoricalHeaderURL,
		},
		client: client,
		cache:  cache,
		logger: logger,
		eras:   make(map[string]resolved),
	}
}

// Get returns the schema for era.
func (r *Resolver) Get(ctx context.Context, era string) (*Schema, error) {
	if res, ok := r.eras[era]; ok {
		return res.schema, res.err
	}
	s, err := r.load(ctx, era)
	r.eras[era] = resolved{schema: s, err: err}
	return s, err
}

func (r *Resolver) load(ctx context.Context, era string) (*Schema, error) {
	l := r.logger.With(slog.String("era", era))
	url, ok := r.urls[era]
	if !ok {
		return nil, fmt.Errorf("unknown schema era %q", era)
	}

	s, fetchErr := r.fetch(ctx, era, url)
	if fetchErr == nil {
		if r.cache != nil {
			if err := r.cache.SaveSchema(ctx, era, s.Columns); err != nil {
				l.Warn("Failed to cache schema.", "error", err)
			}
		}
		l.Debug("Schema fetched.", slog.Int("columns", s.Len()))
		return s, nil
	}

	if r.cache != nil {
		cols, found, err := r.cache.LoadSchema(ctx, era)
		if err != nil {
			l.Warn("Schema cache lookup failed.", "error", err)
		} else if found {
			l.Warn("Schema fetch failed, using cached copy.", "error", fetchErr)
			return New(era, cols), nil
		}
	}
	return nil, fmt.Errorf("%s schema: %w", era, fetchErr)
}

func (r *Resolver) fetch(ctx context.Context, era, url string) (*Schema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	util.DecorateRequest(req)
	body, err := util.DownloadFile(r.client, req)
	if err != nil {
		return nil, err
	}
	s := ParseHeader(era, string(body))
	if s.Len() == 0 {
		return nil, fmt.Errorf("empty header from %s", url)
	}
	return s, nil
}

// ResolveUnion returns current-era columns followed by historical-only
// ones. If only one era is available its columns are returned alone.
func (r *Resolver) ResolveUnion(ctx context.Context) ([]string, error) {
	cur, curErr := r.Get(ctx, EraCurrent)
	hist, histErr := r.Get(ctx, EraHistorical)
	switch {
	case curErr != nil && histErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrNoSchema, errors.Join(curErr, histErr))
	case curErr != nil:
		r.logger.Warn("Current-era schema unavailable, offering historical columns only.", "error", curErr)
		return append([]string(nil), hist.Columns...), nil
	case histErr != nil:
		r.logger.Warn("Historical schema unavailable, offering current-era columns only.", "error", histErr)
		return append([]string(nil), cur.Columns...), nil
	}
	return Union(cur.Columns, hist.Columns), nil
}

// ForFile returns the schema used to label extracted files: current-era,
// or historical when the current-era definition cannot be obtained.
func (r *Resolver) ForFile(ctx context.Context) (*Schema, error) {
	cur, curErr := r.Get(ctx, EraCurrent)
	if curErr == nil {
		return cur, nil
	}
	hist, histErr := r.Get(ctx, EraHistorical)
	if histErr == nil {
		return hist, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoSchema, errors.Join(curErr, histErr))
}

// ReadTabular parses path as headerless tab-separated text labeled by ForFile.
func (r *Resolver) ReadTabular(ctx context.Context, path string) (*Table, error) {
	s, err := r.ForFile(ctx)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f, s)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	t.Source = filepath.Base(path)
	return t, nil
}

// Read parses headerless tab-separated records from rd. Fields are split
// on tabs only; the source never quotes. Lines with more fields than s are
// skipped and counted, shorter lines are padded with empty fields, and
// blank lines are ignored. Fields are not interpreted.
func Read(rd io.Reader, s *Schema) (*Table, error) {
	br := bufio.NewReaderSize(rd, 256<<10)
	t := &Table{Schema: s}
	width := s.Len()
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			rec := strings.Split(line, "\t")
			switch {
			case len(rec) > width:
				t.Skipped++
			case len(rec) < width:
				padded := make([]string, width)
				copy(padded, rec)
				t.Rows = append(t.Rows, padded)
			default:
				t.Rows = append(t.Rows, rec)
			}
		}
		if err == io.EOF {
			return t, nil
		}
	}
}
