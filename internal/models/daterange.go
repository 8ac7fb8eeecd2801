package models

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for all-day events.
const DateLayout = "2006-01-02"

// DateRange is a half-open interval [Start, End) over calendar dates.
// Both bounds are midnight UTC of their calendar day. End is the first day
// not covered, matching the all-day event convention of iCalendar.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalizes start and end to calendar dates and returns
// ErrInvalidRange unless start is strictly before end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s, e := DateOf(start), DateOf(end)
	if !s.Before(e) {
		return DateRange{}, fmt.Errorf("%w: %s is not before %s", ErrInvalidRange, FormatDate(s), FormatDate(e))
	}
	return DateRange{Start: s, End: e}, nil
}

// MustDateRange is NewDateRange for literals known to be valid.
func MustDateRange(start, end time.Time) DateRange {
	r, err := NewDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// Valid reports whether Start is strictly before End.
func (r DateRange) Valid() bool {
	return r.Start.Before(r.End)
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(r.Start) && d.Before(r.End)
}

// Overlaps reports whether the two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Days lists every covered day in ascending order.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", FormatDate(r.Start), FormatDate(r.End))
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf reduces t to its calendar day, read in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses an ISO calendar date such as "2025-07-05".
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
