// Package consolidate merges raw booking ranges into the minimal set of
// non-overlapping, non-adjacent ranges per physical room.
package consolidate

import (
	"fmt"
	"slices"

	"icalmerge/internal/models"
)

// Merge returns the minimal ordered sequence of ranges covering exactly the
// same days as the input. Ranges that overlap or merely touch (one ends on the
// day the next starts) are merged: a checkout and a check-in on the same day
// is continuous unavailability. The input slice is not modified.
func Merge(ranges []models.DateRange) []models.DateRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b models.DateRange) int {
		return a.Start.Compare(b.Start)
	})

	merged := []models.DateRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// ByRoom maps raw source keys onto physical rooms and merges the union of each
// room's ranges. A source key that does not derive a room fails the whole call
// with models.ErrAmbiguousRoomMapping; a range with Start >= End fails it with
// models.ErrInvalidRange.
func ByRoom(raw map[string][]models.DateRange) (map[string][]models.BookingRange, error) {
	perRoom := make(map[string][]models.DateRange)
	for source, ranges := range raw {
		room, err := models.RoomFromSource(source)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			if !r.Valid() {
				return nil, fmt.Errorf("%w: source %q has %s", models.ErrInvalidRange, source, r)
			}
		}
		perRoom[room] = append(perRoom[room], ranges...)
	}

	out := make(map[string][]models.BookingRange, len(perRoom))
	for room, ranges := range perRoom {
		bookings := []models.BookingRange{}
		for _, r := range Merge(ranges) {
			bookings = append(bookings, models.BookingRange{Room: room, DateRange: r})
		}
		out[room] = bookings
	}
	return out, nil
}
