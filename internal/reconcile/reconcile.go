// Package reconcile turns consolidated bookings into the desired event set for
// a sync window and diffs it against the events observed on the target
// calendar.
//
// Events are matched by exact (summary, start, end) tuple. A booking that
// shifts by a single day is therefore deleted and recreated rather than
// resized in place, and the old event ID is lost.
package reconcile

import (
	"cmp"
	"fmt"
	"slices"

	"icalmerge/internal/models"
)

// Plan is the ordered list of mutations that converges actual onto desired.
type Plan struct {
	ToCreate []models.DesiredEvent
	ToDelete []models.ActualEvent
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToDelete) == 0
}

// Desired labels every booking that overlaps the window as "<room> booked",
// deduplicates by key and returns the events sorted.
func Desired(bookings map[string][]models.BookingRange, w models.SyncWindow) []models.DesiredEvent {
	seen := make(map[models.EventKey]bool)
	var out []models.DesiredEvent
	for room, ranges := range bookings {
		for _, b := range ranges {
			if !w.Overlaps(b.DateRange) {
				continue
			}
			ev := models.DesiredEvent{Summary: models.BookedSummary(room), DateRange: b.DateRange}
			if seen[ev.Key()] {
				continue
			}
			seen[ev.Key()] = true
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, compareDesired)
	return out
}

// Managed keeps the actual events this tool owns: the summary follows the
// "<room> booked" convention and the range overlaps the window.
func Managed(actual []models.ActualEvent, w models.SyncWindow) []models.ActualEvent {
	var out []models.ActualEvent
	for _, ev := range actual {
		if _, ok := models.RoomFromSummary(ev.Summary); !ok {
			continue
		}
		if !w.Overlaps(ev.DateRange) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Validate returns models.ErrInvalidRange for the first event whose range is
// empty or inverted.
func Validate(desired []models.DesiredEvent, actual []models.ActualEvent) error {
	for _, ev := range desired {
		if !ev.Valid() {
			return fmt.Errorf("%w: desired %v", models.ErrInvalidRange, ev.Key())
		}
	}
	for _, ev := range actual {
		if !ev.Valid() {
			return fmt.Errorf("%w: actual %s %v", models.ErrInvalidRange, ev.ID, ev.Key())
		}
	}
	return nil
}

// Reconcile computes the events to create (desired but not observed) and the
// events to delete (observed but not desired). When the calendar holds the
// same desired tuple more than once, the first copy is kept and the rest are
// deleted. Only observed events are ever scheduled for deletion.
func Reconcile(desired []models.DesiredEvent, actual []models.ActualEvent) Plan {
	want := make(map[models.EventKey]bool, len(desired))
	for _, ev := range desired {
		want[ev.Key()] = true
	}

	sortedActual := slices.Clone(actual)
	slices.SortFunc(sortedActual, compareActual)

	var plan Plan
	have := make(map[models.EventKey]bool, len(actual))
	for _, ev := range sortedActual {
		key := ev.Key()
		if !want[key] || have[key] {
			plan.ToDelete = append(plan.ToDelete, ev)
			continue
		}
		have[key] = true
	}

	created := make(map[models.EventKey]bool)
	for _, ev := range desired {
		key := ev.Key()
		if have[key] || created[key] {
			continue
		}
		created[key] = true
		plan.ToCreate = append(plan.ToCreate, ev)
	}
	slices.SortFunc(plan.ToCreate, compareDesired)
	return plan
}

func compareDesired(a, b models.DesiredEvent) int {
	return cmp.Or(
		cmp.Compare(a.Summary, b.Summary),
		a.Start.Compare(b.Start),
		a.End.Compare(b.End),
	)
}

func compareActual(a, b models.ActualEvent) int {
	return cmp.Or(
		cmp.Compare(a.Summary, b.Summary),
		a.Start.Compare(b.Start),
		a.End.Compare(b.End),
		cmp.Compare(a.ID, b.ID),
	)
}
