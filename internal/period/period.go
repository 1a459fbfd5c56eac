// Package period maps calendar years onto the period tokens GDELT partitions
// its event archives by, and recovers years from tokens embedded in filenames.
//
// The partitioning changed over the life of the dataset:
//
//	1979-2005  one archive per year              YYYY
//	2006-2012  one archive per month             YYYYMM
//	2013       monthly for Jan-Mar, then daily   YYYYMM / YYYYMMDD
//	2014-      one archive per day               YYYYMMDD
//
// The switch in April 2013 is an upstream fact and is replicated as-is.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/brensch/gdelthelper/internal/util"
)

const (
	// FirstYear is the earliest year the source publishes.
	FirstYear       = 1979
	lastAnnualYear  = 2005
	lastMonthlyYear = 2012
	// SwitchYear is the year the source moved from monthly to daily archives.
	SwitchYear = 2013
	// firstDailyMonth is the first month of SwitchYear published per day.
	firstDailyMonth = time.April
)

var (
	dateToken8 = regexp.MustCompile(`\d{8}`)
	dateToken6 = regexp.MustCompile(`\d{6}`)
	dateToken4 = regexp.MustCompile(`\d{4}`)
)

// Enumerate returns the ordered period tokens for year. Years before
// FirstYear have no periods.
func Enumerate(year int) []string {
	switch {
	case year < FirstYear:
		return nil
	case year <= lastAnnualYear:
		return []string{strconv.Itoa(year)}
	case year <= lastMonthlyYear:
		return months(year, time.January, time.December)
	case year == SwitchYear:
		out := months(year, time.January, firstDailyMonth-1)
		return append(out, days(year, firstDailyMonth, time.December)...)
	default:
		return days(year, time.January, time.December)
	}
}

// CountTargets sums the enumeration lengths of years without touching the
// network. It sizes progress reporting before a batch starts.
func CountTargets(years []int) int {
	total := 0
	for _, y := range years {
		total += countFor(y)
	}
	return total
}

func countFor(year int) int {
	switch {
	case year < FirstYear:
		return 0
	case year <= lastAnnualYear:
		return 1
	case year <= lastMonthlyYear:
		return 12
	}
	first := time.January
	n := 0
	if year == SwitchYear {
		n = int(firstDailyMonth - 1)
		first = firstDailyMonth
	}
	for m := first; m <= time.December; m++ {
		n += util.DaysIn(year, m)
	}
	return n
}

func months(year int, from, to time.Month) []string {
	out := make([]string, 0, int(to-from)+1)
	for m := from; m <= to; m++ {
		out = append(out, fmt.Sprintf("%04d%02d", year, int(m)))
	}
	return out
}

func days(year int, from, to time.Month) []string {
	var out []string
	for m := from; m <= to; m++ {
		for d := 1; d <= util.DaysIn(year, m); d++ {
			out = append(out, fmt.Sprintf("%04d%02d%02d", year, int(m), d))
		}
	}
	return out
}

// YearFromFilename extracts the year of the date token embedded in name.
// An eight-digit token wins over a six-digit one; a bare four-digit token
// only counts when it lies between FirstYear and now's year.
func YearFromFilename(name string, now time.Time) (int, bool) {
	if tok := dateToken8.FindString(name); tok != "" {
		y, _ := strconv.Atoi(tok[:4])
		return y, true
	}
	if tok := dateToken6.FindString(name); tok != "" {
		y, _ := strconv.Atoi(tok[:4])
		return y, true
	}
	if tok := dateToken4.FindString(name); tok != "" {
		y, _ := strconv.Atoi(tok)
		if y >= FirstYear && y <= now.UTC().Year() {
			return y, true
		}
	}
	return 0, false
}

// FilenameYearInRange reports whether name carries a date token whose year
// falls inside [start, end].
func FilenameYearInRange(name string, start, end int, now time.Time) bool {
	y, ok := YearFromFilename(name, now)
	return ok && y >= start && y <= end
}
