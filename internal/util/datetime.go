package util

import (
	"strconv"
	"strings"
	"time"
)

// compactDateLayout is the YYYYMMDD form used by GDELT period tokens and the SQLDATE column.
const compactDateLayout = "20060102"

// DaysIn returns the number of days in the given month of the proleptic Gregorian calendar.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CompactDate formats t as YYYYMMDD in UTC.
func CompactDate(t time.Time) string {
	return t.UTC().Format(compactDateLayout)
}

// CompactDateYear derives a year from the first four characters of a compact
// date string such as "20130401". It reports false when those characters are
// missing or not numeric.
func CompactDateYear(s string) (int, bool) {
	if len(s) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}

// ParseYear coerces a dedicated year field to an integer, the way a lenient
// numeric conversion would ("2014", " 2014 ", "2014.0").
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
