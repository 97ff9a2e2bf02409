// Package temporal derives season and period metadata from timestamps.
// The labels it produces are attached to embedding records so that
// retrieval can reason about when a conversation happened.
package temporal

import (
	"fmt"
	"time"
)

// Season names use fixed calendar quarters rather than astronomical dates.
const (
	SeasonWinter = "winter"
	SeasonSpring = "spring"
	SeasonSummer = "summer"
	SeasonAutumn = "autumn"
)

// Metadata describes the season and period a timestamp falls into.
type Metadata struct {
	Year        int
	Month       int
	Season      string
	PeriodLabel string
	TimeRange   string
}

// Compute derives temporal metadata for a timestamp. It is deterministic
// and has no error cases; callers are responsible for rejecting zero or
// malformed timestamps before calling.
func Compute(t time.Time) Metadata {
	year, month := t.Year(), t.Month()
	season := seasonOf(month)

	start, end := seasonRange(year, month)

	return Metadata{
		Year:        year,
		Month:       int(month),
		Season:      season,
		PeriodLabel: fmt.Sprintf("%s %d", season, year),
		TimeRange:   fmt.Sprintf("%s → %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
	}
}

func seasonOf(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonAutumn
	}
}

// seasonRange returns the first and last calendar day of the season that
// contains the given year/month. Winter spans a year boundary: a December
// timestamp belongs to the winter starting that same December, while
// January and February belong to the winter that started the previous
// December.
func seasonRange(year int, month time.Month) (time.Time, time.Time) {
	switch month {
	case time.December:
		return date(year, time.December, 1), endOfFebruary(year + 1)
	case time.January, time.February:
		return date(year-1, time.December, 1), endOfFebruary(year)
	case time.March, time.April, time.May:
		return date(year, time.March, 1), date(year, time.May, 31)
	case time.June, time.July, time.August:
		return date(year, time.June, 1), date(year, time.August, 31)
	default:
		return date(year, time.September, 1), date(year, time.November, 30)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func endOfFebruary(year int) time.Time {
	// March 0 normalizes to the last day of February, leap years included.
	return time.Date(year, time.March, 0, 0, 0, 0, 0, time.UTC)
}
