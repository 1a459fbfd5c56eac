package filter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/period"
	"github.com/brensch/gdelthelper/internal/schema"
	"github.com/brensch/gdelthelper/internal/util"
)

// Role names one side of an event.
type Role string

const (
	Actor1 Role = "Actor1"
	Actor2 Role = "Actor2"
)

func (r Role) countryColumn() string { return string(r) + "CountryCode" }
func (r Role) typeColumn() string    { return string(r) + "Type1Code" }

// Column names read by the predicates.
const (
	ColYear    = "Year"
	ColSQLDate = "SQLDATE"
)

func missing(col string) *Skip {
	return &Skip{Reason: "missing column " + col, Level: slog.LevelInfo}
}

func present(v string) bool { return strings.TrimSpace(v) != "" }

type yearPredicate struct {
	start, end int
	now        time.Time
}

// Year keeps rows whose year lies in [start, end]. It reads Year, or the
// first four characters of SQLDATE when Year is absent. Tables whose file
// name already carries an in-range date token are not re-checked.
func Year(start, end int, now time.Time) Predicate {
	return yearPredicate{start: start, end: end, now: now}
}

func (p yearPredicate) Name() string { return "year" }

func (p yearPredicate) Bind(t *schema.Table) (func([]string) bool, *Skip) {
	if t.Source != "" && period.FilenameYearInRange(t.Source, p.start, p.end, p.now) {
		return nil, &Skip{Reason: "file name within year range", Level: slog.LevelDebug}
	}
	in := func(y int, ok bool) bool { return ok && y >= p.start && y <= p.end }
	if i, ok := t.Schema.Index(ColYear); ok {
		return func(row []string) bool { return in(util.ParseYear(row[i])) }, nil
	}
	if i, ok := t.Schema.Index(ColSQLDate); ok {
		return func(row []string) bool { return in(util.CompactDateYear(strings.TrimSpace(row[i]))) }, nil
	}
	return nil, &Skip{Reason: "missing Year and SQLDATE, cannot filter by year", Level: slog.LevelInfo}
}

type setPredicate struct {
	name   string
	column string
	// requirePresent keeps rows with a non-empty field.
	requirePresent bool
	// set, when non-nil, keeps rows whose field is a member.
	set map[string]struct{}
	// emptySet marks a custom mode configured without tokens.
	emptySet bool
}

func (p setPredicate) Name() string { return p.name }

func (p setPredicate) Bind(t *schema.Table) (func([]string) bool, *Skip) {
	i, ok := t.Schema.Index(p.column)
	if !ok {
		return nil, missing(p.column)
	}
	if p.emptySet {
		return nil, &Skip{Reason: fmt.Sprintf("custom %s set is empty, filter not applied", p.name), Level: slog.LevelWarn}
	}
	if p.set != nil {
		return func(row []string) bool {
			_, ok := p.set[strings.ToUpper(strings.TrimSpace(row[i]))]
			return ok
		}, nil
	}
	if p.requirePresent {
		return func(row []string) bool { return present(row[i]) }, nil
	}
	return func([]string) bool { return true }, nil
}

// Country filters one role's country code. In all mode the field must be
// non-empty; in custom mode it must be in set. A custom mode with an empty
// set is not applied.
func Country(role Role, mode string, set map[string]struct{}) Predicate {
	p := setPredicate{name: string(role) + " country", column: role.countryColumn()}
	if mode == config.CountryCustom {
		p.set, p.emptySet = set, len(set) == 0
	} else {
		p.requirePresent = true
	}
	return p
}

// Type filters one role's primary type code: labeled requires a value,
// custom requires membership in set (an empty set is not applied), and all
// keeps everything.
func Type(role Role, mode string, set map[string]struct{}) Predicate {
	p := setPredicate{name: string(role) + " type", column: role.typeColumn()}
	switch mode {
	case config.TypeLabeled:
		p.requirePresent = true
	case config.TypeCustom:
		p.set, p.emptySet = set, len(set) == 0
	}
	return p
}

type crossCountry struct{}

// CrossCountry keeps rows whose two actor countries are both present and differ.
func CrossCountry() Predicate { return crossCountry{} }

func (crossCountry) Name() string { return "cross country" }

func (crossCountry) Bind(t *schema.Table) (func([]string) bool, *Skip) {
	a, okA := t.Schema.Index(Actor1.countryColumn())
	b, okB := t.Schema.Index(Actor2.countryColumn())
	if !okA || !okB {
		return nil, missing(Actor1.countryColumn() + "/" + Actor2.countryColumn())
	}
	return func(row []string) bool {
		x, y := strings.TrimSpace(row[a]), strings.TrimSpace(row[b])
		return x != "" && y != "" && x != y
	}, nil
}
