// Package processor merges a directory of extracted event files into one
// filtered, column-projected table.
package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/downloader"
	"github.com/brensch/gdelthelper/internal/filter"
	"github.com/brensch/gdelthelper/internal/period"
	"github.com/brensch/gdelthelper/internal/schema"
)

// ErrFatal wraps conditions that abort a whole run.
var ErrFatal = errors.New("processing aborted")

// Deps are the collaborators of one run.
type Deps struct {
	Resolver *schema.Resolver
	Recorder db.Recorder // may be nil
	Logger   *slog.Logger
	RunID    string
	// Format is config.FormatTSV (default) or config.FormatParquet.
	Format string
	Now    func() time.Time
	// Progress, if set, receives the files handled so far and the total.
	Progress func(done, total int)
}

// FileResult is the outcome of one input file.
type FileResult struct {
	Name string
	Rows int
	// Malformed counts lines dropped for having too many fields.
	Malformed int
	Err       error
	// Skipped is set when the file was deliberately not used.
	Skipped string
}

// RunStatistics accumulates over one run and is returned to the caller,
// populated even when the run aborts.
type RunStatistics struct {
	FilesTotal int
	FilesUsed  int
	RowsOut    int
	Errors     int
	Cancelled  bool
	Columns    []string
	OutputPath string // empty when nothing was written
	Files      []FileResult
	Duration   time.Duration
}

// spooled is one file's surviving rows waiting on disk for the merge.
type spooled struct {
	path    string
	columns []string
}

// ProcessDirectory filters and projects every tabular file in rawDir in name
// order and writes the concatenation to outPath. A failing file is counted
// and skipped. Cancellation is checked before each file; rows of files
// already processed are still written. Exactly one summary line is logged.
func ProcessDirectory(ctx context.Context, deps Deps, rawDir, outPath string, cfg config.ProcessorConfig) (RunStatistics, error) {
	start := time.Now()
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	logger := deps.Logger
	stats := RunStatistics{}

	finish := func(err error) (RunStatistics, error) {
		stats.Duration = time.Since(start)
		summarise(ctx, deps, logger, rawDir, &stats, err)
		return stats, err
	}

	if err := cfg.Validate(); err != nil {
		return finish(fmt.Errorf("%w: %w", ErrFatal, err))
	}
	if info, err := os.Stat(rawDir); err != nil || !info.IsDir() {
		return finish(fmt.Errorf("%w: source directory %s unavailable: %w", ErrFatal, rawDir, errors.Join(err, notDir(info))))
	}
	outDir := filepath.Dir(outPath)
	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return finish(fmt.Errorf("%w: output directory %s unavailable: %w", ErrFatal, outDir, errors.Join(err, notDir(info))))
	}

	names, err := downloader.ListTabular(rawDir)
	if err != nil {
		return finish(fmt.Errorf("%w: list %s: %w", ErrFatal, rawDir, err))
	}
	stats.FilesTotal = len(names)
	logger.Info("Starting processing.", slog.String("source", rawDir), slog.Int("files", len(names)))

	spoolDir, err := os.MkdirTemp("", "gdelt-spool-*")
	if err != nil {
		return finish(fmt.Errorf("%w: create spool directory: %w", ErrFatal, err))
	}
	defer os.RemoveAll(spoolDir)

	pipeline := filter.Build(cfg, logger, now())
	var parts []spooled

	progress := func(done int) {
		if deps.Progress != nil {
			deps.Progress(done, len(names))
		}
	}
	for i, name := range names {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		l := logger.With(slog.String("file", name))
		res := FileResult{Name: name}

		if cfg.EnableYearFilter {
			if y, ok := period.YearFromFilename(name, now()); ok && (y < cfg.YearStart || y > cfg.YearEnd) {
				res.Skipped = fmt.Sprintf("file name year %d outside %d-%d", y, cfg.YearStart, cfg.YearEnd)
				l.Debug("Skipping file outside year range.", slog.Int("year", y))
				stats.Files = append(stats.Files, res)
				progress(i + 1)
				continue
			}
		}

		fileStart := time.Now()
		part := spooled{path: filepath.Join(spoolDir, fmt.Sprintf("%06d.tsv", i))}
		cols, n, malformed, err := processFile(ctx, deps.Resolver, pipeline, filepath.Join(rawDir, name), part.path, cfg.SelectedColumns)
		part.columns = cols
		res.Rows, res.Malformed = n, malformed
		elapsed := time.Since(fileStart)

		switch {
		case errors.Is(err, ErrFatal):
			res.Err = err
			stats.Files = append(stats.Files, res)
			return finish(err)
		case errors.Is(err, ErrNoColumns):
			res.Skipped = err.Error()
			l.Info("No selected columns in file schema, file contributes no rows.")
		case err != nil:
			res.Err = err
			stats.Errors++
			l.Error("Failed to process file.", "error", err)
			record(ctx, deps, logger, name, db.EventError, "", err.Error(), &elapsed)
		default:
			if malformed > 0 {
				l.Warn("Dropped malformed lines.", slog.Int("lines", malformed))
			}
			if n > 0 {
				parts = append(parts, part)
				stats.FilesUsed++
				stats.RowsOut += n
			}
			l.Debug("File processed.", slog.Int("rows", n), slog.Duration("duration", elapsed))
			record(ctx, deps, logger, name, db.EventProcessEnd, "", fmt.Sprintf("rows=%d malformed=%d", n, malformed), &elapsed)
		}
		stats.Files = append(stats.Files, res)
		progress(i + 1)
	}

	if stats.RowsOut == 0 {
		return finish(nil)
	}
	stats.Columns = headerOf(parts)
	if err := writeMerged(deps.Format, outPath, stats.Columns, parts); err != nil {
		return finish(fmt.Errorf("%w: write %s: %w", ErrFatal, outPath, err))
	}
	stats.OutputPath = outPath
	return finish(nil)
}

func notDir(info os.FileInfo) error {
	if info != nil && !info.IsDir() {
		return errors.New("not a directory")
	}
	return nil
}

// processFile filters one file and spools its projected rows to spoolPath.
// Spool failures wrap ErrFatal; anything else is a per-file error.
func processFile(ctx context.Context, r *schema.Resolver, p *filter.Pipeline, path, spoolPath string, requested []string) (cols []string, rows, malformed int, err error) {
	t, err := r.ReadTabular(ctx, path)
	if err != nil {
		if errors.Is(err, schema.ErrNoSchema) {
			return nil, 0, 0, fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return nil, 0, 0, err
	}
	cols = Project(t.Schema, requested)
	idx, err := indices(t.Schema, cols)
	if err != nil {
		return nil, 0, t.Skipped, err
	}

	kept := p.Apply(t)
	if len(kept) == 0 {
		return cols, 0, t.Skipped, nil
	}

	f, err := os.Create(spoolPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: create spool file: %w", ErrFatal, err)
	}
	bw := bufio.NewWriter(f)
	field := make([]string, len(idx))
	for _, row := range kept {
		for i, j := range idx {
			field[i] = row[j]
		}
		bw.WriteString(strings.Join(field, "\t"))
		bw.WriteByte('\n')
	}
	if err := errors.Join(bw.Flush(), f.Close()); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: write spool file: %w", ErrFatal, err)
	}
	return cols, len(kept), t.Skipped, nil
}

// headerOf is the ordered union of the per-file column lists.
func headerOf(parts []spooled) []string {
	var header []string
	for _, p := range parts {
		header = schema.Union(header, p.columns)
	}
	return header
}

// writeMerged concatenates the spool files in order into a temporary file
// beside outPath and renames it into place.
func writeMerged(format, outPath string, header []string, parts []spooled) error {
	tmp := outPath + ".partial"
	w, err := newRowWriter(format, tmp, header)
	if err != nil {
		return err
	}
	pos := make(map[string]int, len(header))
	for i, c := range header {
		pos[c] = i
	}
	for _, p := range parts {
		if err := copyPart(w, p, pos, len(header)); err != nil {
			w.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, outPath)
}

func copyPart(w rowWriter, p spooled, pos map[string]int, width int) error {
	f, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 256<<10)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if line = strings.TrimSuffix(line, "\n"); line != "" || err == nil {
			fields := strings.Split(line, "\t")
			row := make([]string, width)
			for i, c := range p.columns {
				if i < len(fields) {
					row[pos[c]] = fields[i]
				}
			}
			if werr := w.Write(row); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

func record(ctx context.Context, deps Deps, logger *slog.Logger, target, event, outputPath, msg string, d *time.Duration) {
	db.Record(ctx, deps.Recorder, logger, db.Event{
		RunID:      deps.RunID,
		Target:     target,
		Kind:       db.KindFile,
		Event:      event,
		OutputPath: outputPath,
		Message:    msg,
		Duration:   d,
	})
}

// summarise logs the one terminal line of a run and records it.
func summarise(ctx context.Context, deps Deps, logger *slog.Logger, rawDir string, s *RunStatistics, err error) {
	attrs := []any{
		slog.Int("files_total", s.FilesTotal),
		slog.Int("files_used", s.FilesUsed),
		slog.Int("rows_out", s.RowsOut),
		slog.Int("errors", s.Errors),
		slog.Duration("duration", s.Duration.Round(time.Millisecond)),
	}
	state := "completed"
	switch {
	case err != nil:
		state = "aborted"
		logger.Error("Processing aborted.", append(attrs, "error", err)...)
	case s.Cancelled:
		state = "cancelled"
		logger.Warn("Processing cancelled.", append(attrs, slog.String("output", s.OutputPath))...)
	case s.RowsOut == 0:
		logger.Info("Processing finished, no rows produced.", attrs...)
	default:
		logger.Info("Processing finished.", append(attrs, slog.String("output", s.OutputPath))...)
	}
	db.Record(ctx, deps.Recorder, logger, db.Event{
		RunID:      deps.RunID,
		Target:     rawDir,
		Kind:       db.KindRun,
		Event:      db.EventRunEnd,
		OutputPath: s.OutputPath,
		Message: fmt.Sprintf("process %s files=%d used=%d rows=%d errors=%d",
			state, s.FilesTotal, s.FilesUsed, s.RowsOut, s.Errors),
		Duration: &s.Duration,
	})
}
