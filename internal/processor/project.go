package processor

import (
	"errors"

	"github.com/brensch/gdelthelper/internal/schema"
)

// ErrNoColumns means none of the requested columns exist in a file's schema.
var ErrNoColumns = errors.New("no selected columns present in schema")

// PriorityColumns lead every projection, in this order, when selected.
var PriorityColumns = []string{
	"Year", "MonthYear", "SQLDATE",
	"Actor1CountryCode", "Actor1Type1Code",
	"Actor2CountryCode", "Actor2Type1Code",
	"EventCode", "EventBaseCode", "EventRootCode",
	"QuadClass", "GoldsteinScale",
}

var priorityRank = func() map[string]int {
	m := make(map[string]int, len(PriorityColumns))
	for i, c := range PriorityColumns {
		m[c] = i
	}
	return m
}()

// Project restricts requested to the columns of s and orders the result:
// priority columns first, then the rest in schema order. An empty request
// selects every column. The caller's ordering of requested never matters.
func Project(s *schema.Schema, requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, c := range requested {
		want[c] = true
	}
	all := len(requested) == 0

	lead := make([]string, len(PriorityColumns))
	var rest []string
	for _, c := range s.Columns {
		if !all && !want[c] {
			continue
		}
		if r, ok := priorityRank[c]; ok {
			lead[r] = c
			continue
		}
		rest = append(rest, c)
	}

	out := make([]string, 0, len(s.Columns))
	for _, c := range lead {
		if c != "" {
			out = append(out, c)
		}
	}
	return append(out, rest...)
}

// indices maps cols to their positions in s.
func indices(s *schema.Schema, cols []string) ([]int, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := s.Index(c)
		if !ok {
			return nil, ErrNoColumns
		}
		idx[i] = j
	}
	return idx, nil
}
