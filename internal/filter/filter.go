// Package filter composes row predicates over a schema-labeled table into
// a single keep mask. Predicates are intersected, so their order does not
// change which rows survive.
package filter

import (
	"context"
	"log/slog"
	"time"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/schema"
)

// Skip explains why a predicate was not applied to a table.
type Skip struct {
	Reason string
	Level  slog.Level
}

// Predicate is one independently configured row test.
type Predicate interface {
	Name() string
	// Bind resolves the columns the predicate needs in t. It returns the
	// row test, or nil and a Skip when the predicate cannot or need not run.
	Bind(t *schema.Table) (func(row []string) bool, *Skip)
}

// Pipeline intersects predicates.
type Pipeline struct {
	preds  []Predicate
	logger *slog.Logger
}

// New returns a pipeline over preds in the given order.
func New(logger *slog.Logger, preds ...Predicate) *Pipeline {
	return &Pipeline{preds: preds, logger: logger}
}

// Build assembles the predicates cfg enables. now bounds filename years.
func Build(cfg config.ProcessorConfig, logger *slog.Logger, now time.Time) *Pipeline {
	var preds []Predicate
	if cfg.EnableYearFilter {
		preds = append(preds, Year(cfg.YearStart, cfg.YearEnd, now))
	}
	preds = append(preds,
		Country(Actor1, cfg.Actor1.CountryMode, cfg.Actor1.CountrySet()),
		Country(Actor2, cfg.Actor2.CountryMode, cfg.Actor2.CountrySet()),
	)
	if cfg.OnlyCrossCountry {
		preds = append(preds, CrossCountry())
	}
	for _, side := range []struct {
		role Role
		f    config.SideFilter
	}{{Actor1, cfg.Actor1}, {Actor2, cfg.Actor2}} {
		if side.f.TypeMode == config.TypeAll {
			continue
		}
		preds = append(preds, Type(side.role, side.f.TypeMode, side.f.TypeSet()))
	}
	return New(logger, preds...)
}

// Predicates returns the pipeline's predicates in order.
func (p *Pipeline) Predicates() []Predicate { return p.preds }

// Mask returns one keep flag per row of t.
func (p *Pipeline) Mask(t *schema.Table) []bool {
	mask := make([]bool, t.Len())
	for i := range mask {
		mask[i] = true
	}
	l := p.logger.With(slog.String("file", t.Source))
	for _, pred := range p.preds {
		keep, skip := pred.Bind(t)
		if skip != nil {
			l.Log(context.Background(), skip.Level, "Predicate not applied.", slog.String("predicate", pred.Name()), slog.String("reason", skip.Reason))
			continue
		}
		for i, row := range t.Rows {
			if mask[i] && !keep(row) {
				mask[i] = false
			}
		}
	}
	return mask
}

// Apply returns the rows of t that pass every predicate, in input order.
func (p *Pipeline) Apply(t *schema.Table) [][]string {
	mask := p.Mask(t)
	var out [][]string
	for i, keep := range mask {
		if keep {
			out = append(out, t.Rows[i])
		}
	}
	return out
}
