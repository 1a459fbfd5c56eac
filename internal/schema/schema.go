// Package schema labels the positional fields of extracted event files
// with column names fetched from the source's header definitions.
package schema

import "strings"

// Eras of header definition.
const (
	EraCurrent    = "current"
	EraHistorical = "historical"
)

// Schema is an ordered, duplicate-free column list with a name index built
// once at construction.
type Schema struct {
	Era     string
	Columns []string
	index   map[string]int
}

// New builds a Schema, dropping blank and repeated names.
func New(era string, columns []string) *Schema {
	s := &Schema{Era: era, index: make(map[string]int, len(columns))}
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := s.index[c]; dup {
			continue
		}
		s.index[c] = len(s.Columns)
		s.Columns = append(s.Columns, c)
	}
	return s
}

// ParseHeader splits a single tab-separated header line.
func ParseHeader(era, body string) *Schema {
	return New(era, strings.Split(strings.TrimSpace(body), "\t"))
}

// Index returns the position of name.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Schema) Len() int { return len(s.Columns) }

// Union returns the names of a followed by those of b not already in a.
func Union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Table is one file's records labeled by Schema. Every row has exactly
// Schema.Len() fields, all kept as text.
type Table struct {
	Source string
	Schema *Schema
	Rows   [][]string
	// Skipped counts lines dropped because they had more fields than the schema.
	Skipped int
}

func (t *Table) Len() int { return len(t.Rows) }

// Value returns the field of row i in column name, and whether the column exists.
func (t *Table) Value(i int, name string) (string, bool) {
	j, ok := t.Schema.Index(name)
	if !ok {
		return "", false
	}
	return t.Rows[i][j], true
}
