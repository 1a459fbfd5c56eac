package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event names written to the log.
const (
	EventDownloadStart = "download_start"
	EventDownloadEnd   = "download_end"
	EventExtractEnd    = "extract_end"
	EventSkipDownload  = "skip_download"
	EventNotFound      = "not_found"
	EventProcessEnd    = "process_end"
	EventRunEnd        = "run_end"
	EventError         = "error"
)

// Target kinds.
const (
	KindPeriod = "period"
	KindFile   = "file"
	KindRun    = "run"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS gdelt_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS gdelt_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('gdelt_event_log_id_seq'),
    run_id          VARCHAR,
    target          VARCHAR NOT NULL,      -- period token, file name or run label
    kind            VARCHAR NOT NULL,      -- 'period', 'file', 'run'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    output_path     VARCHAR,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_gdelt_event_log_target ON gdelt_event_log (target, kind);
CREATE INDEX IF NOT EXISTS idx_gdelt_event_log_event_time ON gdelt_event_log (event, event_timestamp);

CREATE TABLE IF NOT EXISTS gdelt_schema_cache (
    era         VARCHAR PRIMARY KEY,
    header_line VARCHAR NOT NULL,          -- tab-separated column names
    fetched_at  TIMESTAMP NOT NULL
);
`

// Store is the persistent run log and schema cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the DuckDB file at path (":memory:" or "" for an
// in-memory database) and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	// One connection keeps an in-memory database identical across calls.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", path, err)
	}
	s := &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
	if err := s.InitializeSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// InitializeSchema creates the sequence and tables in the correct order.
func (s *Store) InitializeSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = s.db.ExecContext(ctx, schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// Event is one row of the log.
type Event struct {
	RunID      string
	Target     string
	Kind       string
	Event      string
	Timestamp  time.Time
	OutputPath string
	Message    string
	Duration   *time.Duration
}

// LogEvent inserts e. A zero Timestamp is replaced with the current time.
func (s *Store) LogEvent(ctx context.Context, e Event) error {
	query := `
        INSERT INTO gdelt_event_log (run_id, target, kind, event, event_timestamp, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	var durationMs sql.NullInt64
	if e.Duration != nil {
		durationMs = sql.NullInt64{Int64: e.Duration.Milliseconds(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		sql.NullString{String: e.RunID, Valid: e.RunID != ""},
		e.Target,
		e.Kind,
		e.Event,
		e.Timestamp,
		sql.NullString{String: e.OutputPath, Valid: e.OutputPath != ""},
		sql.NullString{String: e.Message, Valid: e.Message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", e.Event, e.Target, err)
	}
	return nil
}

// LatestEvent returns the most recent event for a target.
func (s *Store) LatestEvent(ctx context.Context, target, kind string) (Event, bool, error) {
	query := `
        SELECT run_id, event, event_timestamp, output_path, message, duration_ms
        FROM gdelt_event_log
        WHERE target = ? AND kind = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;
    `
	e := Event{Target: target, Kind: kind}
	var runID, outputPath, msg sql.NullString
	var durationMs sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, target, kind).Scan(&runID, &e.Event, &e.Timestamp, &outputPath, &msg, &durationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, fmt.Errorf("failed query latest event for '%s' (%s): %w", target, kind, err)
	}
	e.RunID, e.OutputPath, e.Message = runID.String, outputPath.String, msg.String
	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		e.Duration = &d
	}
	return e, true, nil
}

// HistoryFilter narrows History. Zero fields match everything.
type HistoryFilter struct {
	Kind  string
	Event string
	RunID string
	Limit int
}

// History returns events newest first.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]Event, error) {
	query := `
        SELECT run_id, target, kind, event, event_timestamp, output_path, message, duration_ms
        FROM gdelt_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	for _, c := range []struct{ col, val string }{{"kind", f.Kind}, {"event", f.Event}, {"run_id", f.RunID}} {
		if c.val == "" {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", c.col, argCounter))
		args = append(args, c.val)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var runID, outputPath, msg sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&runID, &e.Target, &e.Kind, &e.Event, &e.Timestamp, &outputPath, &msg, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan event log row: %w", err)
		}
		e.RunID, e.OutputPath, e.Message = runID.String, outputPath.String, msg.String
		if durationMs.Valid {
			d := time.Duration(durationMs.Int64) * time.Millisecond
			e.Duration = &d
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log rows: %w", err)
	}
	return out, nil
}

// DisplayHistory prints History as a table to w.
func (s *Store) DisplayHistory(ctx context.Context, w io.Writer, f HistoryFilter) error {
	events, err := s.History(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", max(f.Limit, len(events)))
	fmt.Fprintf(w, "%-28s | %-6s | %-14s | %-25s | %-10s | %s\n", "Target", "Kind", "Event", "Timestamp (UTC)", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, e := range events {
		durationStr := ""
		if e.Duration != nil {
			durationStr = fmt.Sprintf("%d", e.Duration.Milliseconds())
		}
		details := e.Message
		if e.OutputPath != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(e.OutputPath))
		}
		fmt.Fprintf(w, "%-28s | %-6s | %-14s | %-25s | %-10s | %s\n",
			e.Target, e.Kind, e.Event, e.Timestamp.Format(time.RFC3339), durationStr, details)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}

// Recorder is the part of Store the download and merge paths write to.
type Recorder interface {
	LogEvent(ctx context.Context, e Event) error
}

// Record writes e to rec if rec is non-nil. The log is best-effort: a
// failure is reported to logger and otherwise ignored.
func Record(ctx context.Context, rec Recorder, logger *slog.Logger, e Event) {
	if rec == nil {
		return
	}
	if err := rec.LogEvent(context.WithoutCancel(ctx), e); err != nil && logger != nil {
		logger.Warn("Failed to write event log.", "event", e.Event, "target", e.Target, "error", err)
	}
}
