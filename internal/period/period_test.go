package period

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate_AnnualYears(t *testing.T) {
	for y := 1979; y <= 2005; y++ {
		got := Enumerate(y)
		require.Len(t, got, 1, "year %d", y)
		assert.Equal(t, strconv.Itoa(y), got[0])
	}
}

func TestEnumerate_MonthlyYears(t *testing.T) {
	for y := 2006; y <= 2012; y++ {
		got := Enumerate(y)
		require.Len(t, got, 12, "year %d", y)
		for i, p := range got {
			assert.Len(t, p, 6)
			assert.Equal(t, strconv.Itoa(y), p[:4])
			m, err := strconv.Atoi(p[4:])
			require.NoError(t, err)
			assert.Equal(t, i+1, m)
		}
	}
}

func TestEnumerate_SwitchYear(t *testing.T) {
	got := Enumerate(2013)
	// Jan-Mar as months, then every day of Apr-Dec 2013.
	wantDays := 30 + 31 + 30 + 31 + 31 + 30 + 31 + 30 + 31
	require.Len(t, got, 3+wantDays)
	assert.Equal(t, []string{"201301", "201302", "201303"}, got[:3])
	assert.Equal(t, "20130401", got[3])
	assert.Equal(t, "20131231", got[len(got)-1])

	assert.Contains(t, got, "201303")
	assert.Contains(t, got, "20130401")
	assert.NotContains(t, got, "201304")
}

func TestEnumerate_DailyYears(t *testing.T) {
	for _, tc := range []struct {
		year int
		want int
	}{
		{2014, 365}, {2015, 365}, {2016, 366}, {2020, 366}, {2100, 365}, {2400, 366},
	} {
		got := Enumerate(tc.year)
		assert.Len(t, got, tc.want, "year %d", tc.year)
		assert.Equal(t, strconv.Itoa(tc.year)+"0101", got[0])
		assert.Equal(t, strconv.Itoa(tc.year)+"1231", got[len(got)-1])
	}
	assert.Contains(t, Enumerate(2016), "20160229")
	assert.NotContains(t, Enumerate(2015), "20150229")
}

func TestEnumerate_BeforeFirstYear(t *testing.T) {
	assert.Empty(t, Enumerate(1978))
	assert.Equal(t, 0, CountTargets([]int{1900, 1978}))
}

func TestCountTargets_MatchesEnumerate(t *testing.T) {
	years := []int{1979, 2005, 2006, 2012, 2013, 2014, 2016}
	want := 0
	for _, y := range years {
		want += len(Enumerate(y))
	}
	assert.Equal(t, want, CountTargets(years))
	assert.Equal(t, 3+275, CountTargets([]int{2013}))
}

func TestYearFromFilename(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		year int
		ok   bool
	}{
		{"20140115.export.CSV", 2014, true},
		{"201303.csv", 2013, true},
		{"1985.csv", 1985, true},
		{"9999.csv", 0, false},
		{"events.csv", 0, false},
		{"1200.csv", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			y, ok := YearFromFilename(tc.name, now)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.year, y)
		})
	}
}

func TestFilenameYearInRange(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, FilenameYearInRange("20140115.export.CSV", 2010, 2014, now))
	assert.False(t, FilenameYearInRange("20150115.export.CSV", 2010, 2014, now))
	assert.False(t, FilenameYearInRange("events.csv", 1979, 2026, now))
}
