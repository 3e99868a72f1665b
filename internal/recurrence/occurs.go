// Package recurrence decides on which calendar dates a routine occurs.
//
// All evaluation happens on civil dates: callers truncate instants into the
// family's time zone before asking, so daylight-saving shifts and server
// time zones never move an occurrence across a day boundary.
package recurrence

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/model"
)

// searchLimit bounds Next. Eight years covers a Feb 29 anchor across a skipped leap year.
const searchLimit = 8 * 366

// OccursOn reports whether a routine with the given frequency and anchor date
// has an occurrence on date. Dates before the anchor never occur.
//
// Monthly and yearly rules never shift: an anchor on the 31st does not fire in
// 30-day months, and a Feb 29 anchor fires only in leap years.
func OccursOn(freq model.Frequency, anchor, date civil.Date) bool {
	if !anchor.IsValid() || !date.IsValid() || date.Before(anchor) {
		return false
	}

	switch freq {
	case model.Daily:
		return true
	case model.Weekly:
		return weekday(date) == weekday(anchor)
	case model.Monthly:
		return date.Day == anchor.Day
	case model.Yearly:
		return date.Month == anchor.Month && date.Day == anchor.Day
	}
	return false
}

// OccursOnRoutine evaluates OccursOn against the routine's stored anchor date.
func OccursOnRoutine(r model.Routine, date civil.Date) bool {
	return OccursOn(r.Frequency, r.AnchorDate, date)
}

// Next returns up to n occurrence dates on or after from.
func Next(freq model.Frequency, anchor, from civil.Date, n int) []civil.Date {
	if n <= 0 || !anchor.IsValid() || !from.IsValid() {
		return nil
	}
	if from.Before(anchor) {
		from = anchor
	}

	var dates []civil.Date
	d := from
	for i := 0; i < searchLimit && len(dates) < n; i++ {
		if OccursOn(freq, anchor, d) {
			dates = append(dates, d)
		}
		d = d.AddDays(1)
	}
	return dates
}

// DateIn returns the civil date of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(t.In(loc))
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
