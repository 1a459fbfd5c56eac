// Package inspector summarises a merged output file through DuckDB.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// DefaultTopPairs is how many actor-country pairs a summary lists.
const DefaultTopPairs = 10

// Column is one entry of the file's schema as DuckDB reads it.
type Column struct {
	Name string
	Type string
}

// Pair counts events between two actor countries.
type Pair struct {
	Actor1 string
	Actor2 string
	Count  int64
}

// Summary describes a merged file.
type Summary struct {
	Path     string
	Format   string
	Columns  []Column
	Rows     int64
	TopPairs []Pair
	// PairsErr is set when the pair query failed; the rest is still valid.
	PairsErr error
}

// Inspect loads path into an in-memory DuckDB and collects its schema, row
// count and, when both actor country columns exist, the topN most frequent
// actor-country pairs.
func Inspect(ctx context.Context, path string, topN int, logger *slog.Logger) (Summary, error) {
	s := Summary{Path: path, Format: formatOf(path)}
	if _, err := os.Stat(path); err != nil {
		return s, fmt.Errorf("inspect %s: %w", path, err)
	}
	if topN <= 0 {
		topN = DefaultTopPairs
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return s, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if s.Format == "parquet" {
		logger.Debug("Loading parquet extension.")
		if _, err := conn.ExecContext(ctx, `INSTALL parquet; LOAD parquet;`); err != nil {
			logger.Warn("Failed install/load parquet extension.", "error", err)
		}
	}
	src := sourceExpr(s.Format, path)

	if s.Columns, err = describe(ctx, conn, src); err != nil {
		return s, err
	}
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+src).Scan(&s.Rows); err != nil {
		return s, fmt.Errorf("count rows of %s: %w", path, err)
	}
	logger.Debug("Row count gathered.", slog.Int64("rows", s.Rows))

	if !s.has("Actor1CountryCode") || !s.has("Actor2CountryCode") {
		logger.Info("Actor country columns absent, skipping pair summary.", slog.String("file", filepath.Base(path)))
		return s, nil
	}
	s.TopPairs, s.PairsErr = topPairs(ctx, conn, src, topN)
	if s.PairsErr != nil {
		logger.Warn("Failed to summarise actor pairs.", "error", s.PairsErr)
	}
	return s, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return "parquet"
	}
	return "tsv"
}

func quote(path string) string {
	return "'" + strings.ReplaceAll(filepath.ToSlash(path), "'", "''") + "'"
}

func sourceExpr(format, path string) string {
	if format == "parquet" {
		return fmt.Sprintf("read_parquet(%s)", quote(path))
	}
	return fmt.Sprintf("read_csv(%s, delim='\\t', quote='', escape='', header=true, all_varchar=true)", quote(path))
}

func (s Summary) has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func describe(ctx context.Context, conn *sql.Conn, src string) ([]Column, error) {
	rows, err := conn.QueryContext(ctx, "DESCRIBE SELECT * FROM "+src)
	if err != nil {
		return nil, fmt.Errorf("query schema: %w", err)
	}
	defer rows.Close()
	var cols []Column
	for rows.Next() {
		var name, typ, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := rows.Scan(&name, &typ, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		cols = append(cols, Column{Name: name.String, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	if len(cols) == 0 {
		return nil, errors.New("no columns found")
	}
	return cols, nil
}

func topPairs(ctx context.Context, conn *sql.Conn, src string, n int) ([]Pair, error) {
	query := fmt.Sprintf(`
        SELECT Actor1CountryCode, Actor2CountryCode, COUNT(*) AS n
        FROM %s
        WHERE COALESCE(Actor1CountryCode, '') <> '' AND COALESCE(Actor2CountryCode, '') <> ''
        GROUP BY 1, 2
        ORDER BY n DESC, 1, 2
        LIMIT %d;
    `, src, n)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Actor1, &p.Actor2, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Print writes s as plain text tables to w.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\n--- Output Summary: %s (%s) ---\n", filepath.Base(s.Path), s.Format)
	fmt.Fprintf(w, "Rows: %d\n\n", s.Rows)
	fmt.Fprintf(w, "  %-30s | %s\n", "Column Name", "Column Type")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 50))
	for _, c := range s.Columns {
		fmt.Fprintf(w, "  %-30s | %s\n", c.Name, c.Type)
	}
	if s.PairsErr != nil {
		fmt.Fprintf(w, "\nTop actor-country pairs: ERROR %v\n", s.PairsErr)
		return
	}
	if len(s.TopPairs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTop actor-country pairs:")
	fmt.Fprintf(w, "  %-8s | %-8s | %s\n", "Actor1", "Actor2", "Events")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 30))
	for _, p := range s.TopPairs {
		fmt.Fprintf(w, "  %-8s | %-8s | %d\n", p.Actor1, p.Actor2, p.Count)
	}
}
