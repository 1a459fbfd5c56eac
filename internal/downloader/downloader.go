package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/util"
)

var (
	// ErrNotFound means no archive candidate could be retrieved for a period.
	ErrNotFound = errors.New("no file found for this period")
	// ErrCorruptArchive means the archive on disk is not a valid zip container.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrCancelled means the session was cancelled before the period finished.
	ErrCancelled = errors.New("download cancelled")
)

// Suffixes are appended to a period token to form its remote archive names,
// in the order they are tried.
var Suffixes = []string{".export.CSV.zip", ".zip"}

// Candidates returns the archive filenames for period p, primary first.
func Candidates(p string) []string {
	out := make([]string, len(Suffixes))
	for i, s := range Suffixes {
		out[i] = p + s
	}
	return out
}

// Outcome is how a single period was satisfied (or not).
type Outcome int

const (
	OutcomeSkipped Outcome = iota // already extracted
	OutcomeDownloaded
	OutcomeLocalArchive // archive already on disk, extracted without network
	OutcomeNotFound
	OutcomeCorrupt
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	return [...]string{"skipped", "downloaded", "local_archive", "not_found", "corrupt", "cancelled", "failed"}[o]
}

// Fetcher retrieves and extracts period archives one at a time.
type Fetcher struct {
	baseURL   string
	chunkSize int
	client    *http.Client
	limiter   *rate.Limiter
	recorder  db.Recorder
	runID     string
	logger    *slog.Logger
}

type Option func(*Fetcher)

// WithClient overrides the HTTP client built from the config timeout.
func WithClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithRecorder writes download events to rec.
func WithRecorder(rec db.Recorder) Option { return func(f *Fetcher) { f.recorder = rec } }

// WithRunID tags recorded events with id.
func WithRunID(id string) Option { return func(f *Fetcher) { f.runID = id } }

// WithLimiter throttles outbound requests with l.
func WithLimiter(l *rate.Limiter) Option { return func(f *Fetcher) { f.limiter = l } }

// New builds a Fetcher from cfg. A positive cfg.RequestsPerSecond installs
// a limiter unless one is given explicitly.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/") + "/",
		chunkSize: cfg.ChunkSize,
		client:    util.DefaultHTTPClient(cfg.RequestTimeout),
		logger:    logger,
	}
	if f.chunkSize <= 0 {
		f.chunkSize = config.DefaultChunkSize
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch satisfies one period in destDir. onUnitDone (may be nil) is called
// exactly once when the period is satisfied, whether by an existing file,
// a local archive or a download, and also after a corrupt archive was
// found, since the period was attempted in full.
func (f *Fetcher) Fetch(ctx context.Context, p, destDir string, onUnitDone func()) error {
	_, err := f.FetchPeriod(ctx, p, destDir, onUnitDone)
	return err
}

// FetchPeriod is Fetch that also reports which path was taken.
func (f *Fetcher) FetchPeriod(ctx context.Context, p, destDir string, onUnitDone func()) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeCancelled, ErrCancelled
	}
	l := f.logger.With(slog.String("period", p))
	done := func() {
		if onUnitDone != nil {
			onUnitDone()
		}
	}

	if name, ok := Satisfied(destDir, p); ok {
		l.Info("Already present, skipping.", slog.String("file", name))
		f.record(ctx, l, p, db.EventSkipDownload, filepath.Join(destDir, name), "", nil)
		done()
		return OutcomeSkipped, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		err = fmt.Errorf("create destination %s: %w", destDir, err)
		l.Error("Cannot create destination directory.", "error", err)
		f.record(ctx, l, p, db.EventError, destDir, err.Error(), nil)
		return OutcomeFailed, err
	}

	for _, name := range Candidates(p) {
		if ctx.Err() != nil {
			return OutcomeCancelled, ErrCancelled
		}
		archivePath := filepath.Join(destDir, name)
		cl := l.With(slog.String("archive", name))

		if _, err := os.Stat(archivePath); err == nil {
			cl.Info("Archive already on disk, extracting.")
			outcome, err := f.extract(ctx, cl, p, archivePath, destDir, OutcomeLocalArchive)
			done()
			return outcome, err
		}

		start := time.Now()
		n, err := f.stream(ctx, f.baseURL+name, archivePath, func() {
			cl.Debug("Starting download.")
			f.record(ctx, cl, p, db.EventDownloadStart, archivePath, f.baseURL+name, nil)
		})
		elapsed := time.Since(start)
		switch {
		case errors.Is(err, ErrCancelled):
			cl.Warn("Download cancelled, partial archive removed.")
			f.record(ctx, cl, p, db.EventError, archivePath, "cancelled", &elapsed)
			return OutcomeCancelled, ErrCancelled
		case errors.Is(err, errBadStatus):
			cl.Debug("Candidate not available.", "error", err)
			continue
		case err != nil:
			cl.Warn("Download failed, trying next candidate.", "error", err)
			f.record(ctx, cl, p, db.EventError, archivePath, err.Error(), &elapsed)
			continue
		}

		cl.Info("Downloaded.", slog.String("size", fmt.Sprintf("%.2f MB", float64(n)/1024/1024)), slog.Duration("duration", elapsed.Round(time.Millisecond)))
		f.record(ctx, cl, p, db.EventDownloadEnd, archivePath, fmt.Sprintf("bytes=%d", n), &elapsed)
		outcome, err := f.extract(ctx, cl, p, archivePath, destDir, OutcomeDownloaded)
		done()
		return outcome, err
	}

	l.Warn("No file found for this period.")
	f.record(ctx, l, p, db.EventNotFound, "", "", nil)
	return OutcomeNotFound, fmt.Errorf("period %s: %w", p, ErrNotFound)
}

var errBadStatus = errors.New("bad status")

// stream writes the body at url to path in chunks, checking ctx before
// every chunk. onStart runs once the server has answered 200. Any failure
// removes the partial file.
func (f *Fetcher) stream(ctx context.Context, url, path string, onStart func()) (int64, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return 0, ErrCancelled
			}
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	util.DecorateRequest(req)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ErrCancelled
		}
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s", errBadStatus, resp.Status)
	}
	onStart()

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	discard := func(cause error) (int64, error) {
		out.Close()
		os.Remove(path)
		return 0, cause
	}

	buf := make([]byte, f.chunkSize)
	var written int64
	for {
		n, readErr := io.ReadFull(resp.Body, buf)
		if ctx.Err() != nil {
			return discard(ErrCancelled)
		}
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return discard(fmt.Errorf("write %s: %w", path, err))
			}
			written += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return discard(fmt.Errorf("read body: %w", readErr))
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return written, nil
}

func (f *Fetcher) extract(ctx context.Context, l *slog.Logger, p, archivePath, destDir string, success Outcome) (Outcome, error) {
	start := time.Now()
	files, err := Extract(archivePath, destDir)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, ErrCorruptArchive) {
			l.Error("Extraction failed, archive kept for inspection.", "error", err)
			f.record(ctx, l, p, db.EventError, archivePath, err.Error(), &elapsed)
			return OutcomeCorrupt, err
		}
		l.Error("Extraction failed.", "error", err)
		f.record(ctx, l, p, db.EventError, archivePath, err.Error(), &elapsed)
		return OutcomeFailed, err
	}
	l.Info("Extracted and removed archive.", slog.Int("files", len(files)))
	out := ""
	if len(files) > 0 {
		out = files[0]
	}
	f.record(ctx, l, p, db.EventExtractEnd, out, strings.Join(baseNames(files), ","), &elapsed)
	return success, nil
}

func (f *Fetcher) record(ctx context.Context, l *slog.Logger, p, event, outputPath, msg string, d *time.Duration) {
	db.Record(ctx, f.recorder, l, db.Event{
		RunID:      f.runID,
		Target:     p,
		Kind:       db.KindPeriod,
		Event:      event,
		OutputPath: outputPath,
		Message:    msg,
		Duration:   d,
	})
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
