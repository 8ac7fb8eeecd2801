// Package ical collects booked date ranges from per-listing iCalendar feeds.
package ical

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"icalmerge/internal/models"
)

const (
	icsDateLayout     = "20060102"
	icsDateTimeLayout = "20060102T150405"
	maxOccurrences    = 5000
)

// DefaultKeywords are the summary fragments that mark a VEVENT as a booking.
// Airbnb exports "Reserved" and "Airbnb (Not available)".
var DefaultKeywords = []string{"not available", "reserved"}

// ParseOptions controls which VEVENTs count as bookings.
type ParseOptions struct {
	// Keywords are matched case-insensitively against SUMMARY. Empty means
	// DefaultKeywords.
	Keywords []string

	// From and Until bound RRULE expansion. Instances ending on or before
	// From are not generated. When Until is zero, only the first instance of
	// a recurring event is kept.
	From  time.Time
	Until time.Time
}

// Parse extracts the booked date ranges of an ICS payload. Date-times are
// reduced to their calendar date; empty or inverted ranges are dropped.
// Malformed VEVENTs are skipped; an unparseable payload is an error.
func Parse(body []byte, opts ParseOptions, logger *slog.Logger) ([]models.DateRange, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	var out []models.DateRange
	for _, ve := range cal.Events() {
		if !isBooking(ve, keywords) {
			continue
		}
		ranges, err := eventRanges(ve, opts.From, opts.Until)
		if err != nil {
			logger.Warn("Skipping malformed booking event", "uid", propValue(ve, ics.ComponentPropertyUniqueId), "error", err)
			continue
		}
		for _, r := range ranges {
			if !r.Valid() {
				logger.Debug("Dropping empty booking range", "uid", propValue(ve, ics.ComponentPropertyUniqueId), "range", r.String())
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func isBooking(ve *ics.VEvent, keywords []string) bool {
	summary := strings.ToLower(propValue(ve, ics.ComponentPropertySummary))
	for _, k := range keywords {
		if k != "" && strings.Contains(summary, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// eventRanges returns the ranges covered by ve: one for a plain event, one per
// instance between from and until for a recurring one. The returned ranges are
// not validated.
func eventRanges(ve *ics.VEvent, from, until time.Time) ([]models.DateRange, error) {
	start, err := eventDate(ve, ics.ComponentPropertyDtStart)
	if err != nil {
		return nil, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := eventDate(ve, ics.ComponentPropertyDtEnd)
	if err != nil {
		if ve.GetProperty(ics.ComponentPropertyDtEnd) != nil {
			return nil, fmt.Errorf("DTEND: %w", err)
		}
		end, err = endFromDuration(ve, start)
		if err != nil {
			return nil, fmt.Errorf("DURATION: %w", err)
		}
	}

	base := models.DateRange{Start: start, End: end}
	rule := propValue(ve, ics.ComponentPropertyRrule)
	if rule == "" || until.IsZero() {
		return []models.DateRange{base}, nil
	}
	return expand(ve, base, rule, from, until)
}

// endFromDuration derives the end date of an event without DTEND. Without a
// DURATION either, a date-only event lasts one day.
func endFromDuration(ve *ics.VEvent, start time.Time) (time.Time, error) {
	v := strings.TrimSpace(propValue(ve, ics.ComponentPropertyDuration))
	if v == "" {
		return start.AddDate(0, 0, 1), nil
	}
	prop := goical.NewProp(goical.PropDuration)
	prop.Value = v
	d, err := prop.Duration()
	if err != nil {
		return time.Time{}, err
	}

	instant := start
	if strings.Contains(propValue(ve, ics.ComponentPropertyDtStart), "T") {
		if t, err := ve.GetStartAt(); err == nil {
			instant = t
		}
	}
	return models.DateOf(instant.Add(d)), nil
}

func expand(ve *ics.VEvent, base models.DateRange, rule string, from, until time.Time) ([]models.DateRange, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("RRULE %q: %w", rule, err)
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if ex, err := parseDateValue(v); err == nil {
				set.ExDate(ex)
			}
		}
	}

	days := int(base.End.Sub(base.Start).Hours() / 24)

	// Skip instances that end before from, so the cap only counts
	// instances that can reach the window.
	lower := base.Start
	if !from.IsZero() {
		if l := models.DateOf(from).AddDate(0, 0, -days); l.After(lower) {
			lower = l
		}
	}
	starts := set.Between(lower, until, true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	out := make([]models.DateRange, 0, len(starts))
	for _, s := range starts {
		s = models.DateOf(s)
		out = append(out, models.DateRange{Start: s, End: s.AddDate(0, 0, days)})
	}
	return out, nil
}

// eventDate reads a DTSTART/DTEND property as a calendar date. Date values are
// parsed directly; date-times go through the library so TZID is honored.
func eventDate(ve *ics.VEvent, prop ics.ComponentProperty) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return time.Time{}, errors.New("missing value")
	}
	if t, err := parseDateValue(p.Value); err == nil && !strings.Contains(p.Value, "T") {
		return t, nil
	}

	var t time.Time
	var err error
	if prop == ics.ComponentPropertyDtStart {
		t, err = ve.GetStartAt()
	} else {
		t, err = ve.GetEndAt()
	}
	if err != nil {
		return time.Time{}, err
	}
	return models.DateOf(t), nil
}

// parseDateValue parses a bare ICS DATE or DATE-TIME value (UTC or floating)
// down to its calendar date.
func parseDateValue(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse(icsDateTimeLayout+"Z", v)
		return models.DateOf(t), err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation(icsDateTimeLayout, v, time.UTC)
		return models.DateOf(t), err
	default:
		return time.ParseInLocation(icsDateLayout, v, time.UTC)
	}
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
