package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SaveSchema stores the header columns fetched for era, replacing any
// earlier copy.
func (s *Store) SaveSchema(ctx context.Context, era string, columns []string) error {
	query := `
        INSERT INTO gdelt_schema_cache (era, header_line, fetched_at) VALUES (?, ?, ?)
        ON CONFLICT (era) DO UPDATE SET header_line = excluded.header_line, fetched_at = excluded.fetched_at;
    `
	if _, err := s.db.ExecContext(ctx, query, era, strings.Join(columns, "\t"), s.now()); err != nil {
		return fmt.Errorf("save schema %s: %w", era, err)
	}
	return nil
}

// LoadSchema returns the cached columns for era.
func (s *Store) LoadSchema(ctx context.Context, era string) ([]string, bool, error) {
	var joined string
	err := s.db.QueryRowContext(ctx, `SELECT header_line FROM gdelt_schema_cache WHERE era = ?;`, era).Scan(&joined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load schema %s: %w", era, err)
	}
	if joined == "" {
		return nil, false, nil
	}
	return strings.Split(joined, "\t"), true, nil
}

// CompletedPeriods returns the period tokens that reached extract_end or
// skip_download, for reporting coverage of a year.
func (s *Store) CompletedPeriods(ctx context.Context) (map[string]bool, error) {
	query := `
		SELECT DISTINCT target
		FROM gdelt_event_log
		WHERE kind = ? AND event IN (?, ?);
	`
	rows, err := s.db.QueryContext(ctx, query, KindPeriod, EventExtractEnd, EventSkipDownload)
	if err != nil {
		return nil, fmt.Errorf("query completed periods: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	var scanErrors error
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan completed period: %w", err))
			continue
		}
		out[target] = true
	}
	if err := rows.Err(); err != nil {
		return out, errors.Join(scanErrors, fmt.Errorf("iterate completed periods: %w", err))
	}
	return out, scanErrors
}
