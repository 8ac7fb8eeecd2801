package models

import (
	"fmt"
	"strings"
	"time"
)

// bookedSuffix is the naming convention of every event this tool manages.
const bookedSuffix = " booked"

// BookingRange is a consolidated range attributed to exactly one physical room.
type BookingRange struct {
	Room string
	DateRange
}

// EventKey is the identity of a calendar event for reconciliation: summary plus
// ISO start and end dates. There is no surrogate ID.
type EventKey struct {
	Summary string
	Start   string
	End     string
}

func (k EventKey) String() string {
	return fmt.Sprintf("%q %s..%s", k.Summary, k.Start, k.End)
}

// DesiredEvent is an all-day event that should exist on the target calendar.
type DesiredEvent struct {
	Summary string
	DateRange
}

// Key returns the identity tuple of the event.
func (e DesiredEvent) Key() EventKey {
	return EventKey{Summary: e.Summary, Start: FormatDate(e.Start), End: FormatDate(e.End)}
}

// ActualEvent is an all-day event observed on the target calendar. ID is owned
// by the remote calendar and only used to delete the event.
type ActualEvent struct {
	ID      string
	Summary string
	DateRange
}

// Key returns the identity tuple of the event.
func (e ActualEvent) Key() EventKey {
	return EventKey{Summary: e.Summary, Start: FormatDate(e.Start), End: FormatDate(e.End)}
}

// RoomFromSource derives the physical room of a source key by taking the
// namespace prefix before the first dot: "A.listing1" and "A" both map to "A".
func RoomFromSource(source string) (string, error) {
	room, _, _ := strings.Cut(source, ".")
	room = strings.TrimSpace(room)
	if room == "" {
		return "", fmt.Errorf("%w: source %q", ErrAmbiguousRoomMapping, source)
	}
	return room, nil
}

// BookedSummary is the label of a room's booking events.
func BookedSummary(room string) string {
	return room + bookedSuffix
}

// RoomFromSummary inverts BookedSummary. ok is false for events that do not
// follow the naming convention.
func RoomFromSummary(summary string) (room string, ok bool) {
	room, ok = strings.CutSuffix(summary, bookedSuffix)
	if !ok || strings.TrimSpace(room) == "" {
		return "", false
	}
	return room, true
}

// SyncWindow bounds which events a run is authoritative for: [today, today+horizon).
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

// NewSyncWindow computes the window starting at the calendar day of now.
func NewSyncWindow(now time.Time, horizonDays int) (SyncWindow, error) {
	if horizonDays <= 0 {
		return SyncWindow{}, fmt.Errorf("%w: horizon of %d days", ErrInvalidRange, horizonDays)
	}
	today := DateOf(now)
	return SyncWindow{Start: today, End: today.AddDate(0, 0, horizonDays)}, nil
}

// Overlaps reports whether r shares any day with the window. Full containment
// is not required.
func (w SyncWindow) Overlaps(r DateRange) bool {
	return r.End.After(w.Start) && r.Start.Before(w.End)
}

func (w SyncWindow) String() string {
	return DateRange(w).String()
}
