package processor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/schema"
)

var testNow = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

const header = "GLOBALEVENTID\tSQLDATE\tYear\tActor1CountryCode\tActor1Type1Code\tActor2CountryCode\tActor2Type1Code\tEventCode\tAvgTone\n"

// syncBuffer guards a log buffer written from the handler.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memRecorder struct {
	mu     sync.Mutex
	events []db.Event
	onLog  func(db.Event)
}

func (m *memRecorder) LogEvent(_ context.Context, e db.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	if m.onLog != nil {
		m.onLog(e)
	}
	return nil
}

func (m *memRecorder) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func newDeps(t *testing.T, rec db.Recorder) (Deps, *syncBuffer) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(header))
	}))
	t.Cleanup(srv.Close)
	cfg := config.Default(testNow)
	cfg.CurrentHeaderURL = srv.URL + "/current.txt"
	cfg.HistoricalHeaderURL = srv.URL + "/historical.txt"

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return Deps{
		Resolver: schema.NewResolver(cfg, nil, nil, logger),
		Recorder: rec,
		Logger:   logger,
		RunID:    "run-1",
		Now:      func() time.Time { return testNow },
	}, logs
}

// writeEvents writes n rows dated day into dir/name.
func writeEvents(t *testing.T, dir, name, day string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d\t%s\t%s\tUSA\tGOV\tCHN\t\t010\t%d.5\n", i, day, day[:4], i%7)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func lines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}

func TestProject_PriorityFirstThenSchemaOrder(t *testing.T) {
	s := schema.New(schema.EraCurrent, []string{"GLOBALEVENTID", "SQLDATE", "MonthYear", "Year", "Actor1CountryCode", "AvgTone", "EventCode"})

	got := Project(s, []string{"AvgTone", "EventCode", "Year", "Missing", "SQLDATE"})
	assert.Equal(t, []string{"Year", "SQLDATE", "EventCode", "AvgTone"}, got)
	assert.Equal(t, got, Project(s, []string{"SQLDATE", "Year", "AvgTone", "EventCode"}))

	assert.Equal(t,
		[]string{"Year", "MonthYear", "SQLDATE", "Actor1CountryCode", "EventCode", "GLOBALEVENTID", "AvgTone"},
		Project(s, nil))
	assert.Empty(t, Project(s, []string{"Nope"}))
}

func TestProcessDirectory_RowCountConservation(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 100)
	writeEvents(t, raw, "20140102.export.CSV", "20140102", 50)
	rec := &memRecorder{}
	deps, logs := newDeps(t, rec)
	var progress [][2]int
	deps.Progress = func(done, total int) { progress = append(progress, [2]int{done, total}) }

	outPath := filepath.Join(out, "merged.tsv")
	stats, err := ProcessDirectory(context.Background(), deps, raw, outPath, config.DefaultProcessorConfig(testNow))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesTotal)
	assert.Equal(t, 2, stats.FilesUsed)
	assert.Equal(t, 150, stats.RowsOut)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, outPath, stats.OutputPath)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)

	got := lines(t, outPath)
	require.Len(t, got, 151)
	assert.Equal(t, "Year\tSQLDATE\tActor1CountryCode\tActor1Type1Code\tActor2CountryCode\tActor2Type1Code\tEventCode\tAvgTone", got[0])
	assert.Equal(t, "2014\t20140101\tUSA\tGOV\tCHN\t\t010\t0.5", got[1])
	assert.Equal(t, "2014\t20140102\tUSA\tGOV\tCHN\t\t010\t0.5", got[101])

	assert.Equal(t, 1, strings.Count(logs.String(), "Processing finished."))
	assert.Equal(t, 2, rec.count(db.EventProcessEnd))
	assert.Equal(t, 1, rec.count(db.EventRunEnd))
	_, err = os.Stat(outPath + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestProcessDirectory_DeterministicOutput(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140102.export.CSV", "20140102", 20)
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 30)
	deps, _ := newDeps(t, nil)

	cfg := config.DefaultProcessorConfig(testNow)
	cfg.SelectedColumns = []string{"AvgTone", "GLOBALEVENTID", "Year", "Actor2CountryCode"}
	first := filepath.Join(out, "a.tsv")
	_, err := ProcessDirectory(context.Background(), deps, raw, first, cfg)
	require.NoError(t, err)

	cfg.SelectedColumns = []string{"Actor2CountryCode", "Year", "GLOBALEVENTID", "AvgTone"}
	second := filepath.Join(out, "b.tsv")
	_, err = ProcessDirectory(context.Background(), deps, raw, second, cfg)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(string(a), "Year\tActor2CountryCode\tGLOBALEVENTID\tAvgTone\n2014\tCHN\t0\t0.5\n"))
}

func TestProcessDirectory_PerFileErrorIsNotFatal(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 10)
	require.NoError(t, os.Symlink(filepath.Join(raw, "gone"), filepath.Join(raw, "20140102.export.CSV")))
	writeEvents(t, raw, "20140103.export.CSV", "20140103", 5)
	rec := &memRecorder{}
	deps, logs := newDeps(t, rec)

	stats, err := ProcessDirectory(context.Background(), deps, raw, filepath.Join(out, "m.tsv"), config.DefaultProcessorConfig(testNow))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesTotal)
	assert.Equal(t, 2, stats.FilesUsed)
	assert.Equal(t, 15, stats.RowsOut)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, stats.Files, 3)
	assert.Error(t, stats.Files[1].Err)
	assert.Equal(t, 1, rec.count(db.EventError))
	assert.Contains(t, logs.String(), "file=20140102.export.CSV")
}

func TestProcessDirectory_FilteredRowsAndYearPrefilter(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20130101.export.CSV", "20130101", 40)
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 10)
	require.NoError(t, os.WriteFile(filepath.Join(raw, "20140102.export.CSV"),
		[]byte("1\t20140102\t2014\t\tGOV\tCHN\t\t010\t1\n2\t20140102\t2014\tRUS\t\tRUS\t\t010\t1\n"), 0o644))
	deps, _ := newDeps(t, nil)

	cfg := config.DefaultProcessorConfig(testNow)
	cfg.EnableYearFilter = true
	cfg.YearStart, cfg.YearEnd = 2014, 2014
	stats, err := ProcessDirectory(context.Background(), deps, raw, filepath.Join(out, "m.tsv"), cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FilesTotal)
	assert.Equal(t, 2, stats.FilesUsed)
	assert.Equal(t, 11, stats.RowsOut)
	assert.Contains(t, stats.Files[0].Skipped, "outside")
	assert.Equal(t, 1, stats.Files[2].Rows)
}

func TestProcessDirectory_NoRowsWritesNothing(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 10)
	deps, logs := newDeps(t, nil)

	cfg := config.DefaultProcessorConfig(testNow)
	cfg.Actor1.CountryMode = config.CountryCustom
	cfg.Actor1.Countries = "ZZZ"
	outPath := filepath.Join(out, "m.tsv")
	stats, err := ProcessDirectory(context.Background(), deps, raw, outPath, cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.RowsOut)
	assert.Zero(t, stats.FilesUsed)
	assert.Empty(t, stats.OutputPath)
	_, err = os.Stat(outPath)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, logs.String(), "no rows produced")
}

func TestProcessDirectory_NoSelectedColumnsSkipsFile(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 10)
	deps, _ := newDeps(t, nil)

	cfg := config.DefaultProcessorConfig(testNow)
	cfg.SelectedColumns = []string{"NumMentions"}
	stats, err := ProcessDirectory(context.Background(), deps, raw, filepath.Join(out, "m.tsv"), cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.Errors)
	assert.Zero(t, stats.RowsOut)
	assert.Equal(t, ErrNoColumns.Error(), stats.Files[0].Skipped)
}

func TestProcessDirectory_CancelKeepsProcessedFiles(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 100)
	writeEvents(t, raw, "20140102.export.CSV", "20140102", 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &memRecorder{onLog: func(e db.Event) {
		if e.Event == db.EventProcessEnd {
			cancel()
		}
	}}
	deps, logs := newDeps(t, rec)

	outPath := filepath.Join(out, "m.tsv")
	stats, err := ProcessDirectory(ctx, deps, raw, outPath, config.DefaultProcessorConfig(testNow))
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 1, stats.FilesUsed)
	assert.Equal(t, 100, stats.RowsOut)
	assert.Len(t, lines(t, outPath), 101)
	assert.Equal(t, 1, strings.Count(logs.String(), "Processing cancelled."))
	assert.NotContains(t, logs.String(), "Processing finished")
}

func TestProcessDirectory_MissingDirectoriesAreFatal(t *testing.T) {
	deps, logs := newDeps(t, nil)
	cfg := config.DefaultProcessorConfig(testNow)

	_, err := ProcessDirectory(context.Background(), deps, filepath.Join(t.TempDir(), "none"), filepath.Join(t.TempDir(), "m.tsv"), cfg)
	assert.ErrorIs(t, err, ErrFatal)

	raw := t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 1)
	stats, err := ProcessDirectory(context.Background(), deps, raw, filepath.Join(t.TempDir(), "none", "m.tsv"), cfg)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Zero(t, stats.RowsOut)
	assert.Equal(t, 2, strings.Count(logs.String(), "Processing aborted."))
}

func TestWriteMerged_UnionsHeterogeneousColumns(t *testing.T) {
	dir := t.TempDir()
	a := spooled{path: filepath.Join(dir, "a"), columns: []string{"Year", "EventCode"}}
	b := spooled{path: filepath.Join(dir, "b"), columns: []string{"Year", "AvgTone"}}
	require.NoError(t, os.WriteFile(a.path, []byte("2014\t010\n"), 0o644))
	require.NoError(t, os.WriteFile(b.path, []byte("2015\t1.5\n2016\t\n"), 0o644))

	parts := []spooled{a, b}
	header := headerOf(parts)
	assert.Equal(t, []string{"Year", "EventCode", "AvgTone"}, header)

	outPath := filepath.Join(dir, "out.tsv")
	require.NoError(t, writeMerged(config.FormatTSV, outPath, header, parts))
	assert.Equal(t, []string{"Year\tEventCode\tAvgTone", "2014\t010\t", "2015\t\t1.5", "2016\t\t"}, lines(t, outPath))
}

func TestProcessDirectory_Parquet(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeEvents(t, raw, "20140101.export.CSV", "20140101", 25)
	deps, _ := newDeps(t, nil)
	deps.Format = config.FormatParquet

	outPath := filepath.Join(out, "m.parquet")
	stats, err := ProcessDirectory(context.Background(), deps, raw, outPath, config.DefaultProcessorConfig(testNow))
	require.NoError(t, err)
	assert.Equal(t, 25, stats.RowsOut)

	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Greater(t, len(body), 8)
	assert.Equal(t, "PAR1", string(body[:4]))
	assert.Equal(t, "PAR1", string(body[len(body)-4:]))
}
