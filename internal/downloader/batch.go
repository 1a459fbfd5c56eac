package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/period"
)

// BatchResult summarises one DownloadYears call.
type BatchResult struct {
	Total      int // periods enumerated for the selected years
	Completed  int // units reported done
	Skipped    int
	Downloaded int
	Local      int
	NotFound   int
	Corrupt    int
	Failed     int
	Cancelled  bool
	Duration   time.Duration
	// Err joins the per-period errors other than "not found".
	Err error
}

// DownloadYears fetches every period of years in order. Cancellation is
// checked before each period. onProgress (may be nil) receives the running
// completed count and the fixed total. Exactly one summary line is logged.
func (f *Fetcher) DownloadYears(ctx context.Context, years []int, destDir string, onProgress func(done, total int)) BatchResult {
	start := time.Now()
	res := BatchResult{Total: period.CountTargets(years)}
	f.logger.Info("Starting download.", slog.String("dest", destDir), slog.Int("years", len(years)), slog.Int("total", res.Total))

	unitDone := func() {
		res.Completed++
		if onProgress != nil {
			onProgress(res.Completed, res.Total)
		}
	}

years:
	for _, y := range years {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		targets := period.Enumerate(y)
		if len(targets) == 0 {
			f.logger.Info("No targets for year, skipping.", slog.Int("year", y))
			continue
		}
		f.logger.Info("Searching year.", slog.Int("year", y), slog.Int("periods", len(targets)))

		for _, p := range targets {
			if ctx.Err() != nil {
				res.Cancelled = true
				break years
			}
			outcome, err := f.FetchPeriod(ctx, p, destDir, unitDone)
			switch outcome {
			case OutcomeSkipped:
				res.Skipped++
			case OutcomeDownloaded:
				res.Downloaded++
			case OutcomeLocalArchive:
				res.Local++
			case OutcomeNotFound:
				res.NotFound++
			case OutcomeCorrupt:
				res.Corrupt++
				res.Err = errors.Join(res.Err, err)
			case OutcomeCancelled:
				res.Cancelled = true
				break years
			case OutcomeFailed:
				res.Failed++
				res.Err = errors.Join(res.Err, err)
			}
		}
	}
	res.Duration = time.Since(start)

	attrs := []any{
		slog.Int("completed", res.Completed),
		slog.Int("total", res.Total),
		slog.Int("downloaded", res.Downloaded),
		slog.Int("skipped", res.Skipped+res.Local),
		slog.Int("not_found", res.NotFound),
		slog.Int("corrupt", res.Corrupt),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration.Round(time.Millisecond)),
	}
	summary := "Download finished."
	if res.Cancelled {
		summary = "Download cancelled."
		f.logger.Warn(summary, attrs...)
	} else {
		f.logger.Info(summary, attrs...)
	}
	db.Record(ctx, f.recorder, f.logger, db.Event{
		RunID:    f.runID,
		Target:   "download",
		Kind:     db.KindRun,
		Event:    db.EventRunEnd,
		Message:  summaryMessage(res),
		Duration: &res.Duration,
	})
	return res
}

func summaryMessage(r BatchResult) string {
	state := "completed"
	if r.Cancelled {
		state = "cancelled"
	}
	return fmt.Sprintf("%s %d/%d downloaded=%d skipped=%d not_found=%d corrupt=%d failed=%d",
		state, r.Completed, r.Total, r.Downloaded, r.Skipped+r.Local, r.NotFound, r.Corrupt, r.Failed)
}
