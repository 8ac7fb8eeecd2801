package models

import (
	"errors"
	"testing"
	"time"
)

func TestNewDateRangeRejectsEmptyAndInverted(t *testing.T) {
	jul5 := Date(2025, time.July, 5)
	jul8 := Date(2025, time.July, 8)

	if _, err := NewDateRange(jul5, jul5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero-length range: got %v, want ErrInvalidRange", err)
	}
	if _, err := NewDateRange(jul8, jul5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("inverted range: got %v, want ErrInvalidRange", err)
	}

	r, err := NewDateRange(jul5, jul8)
	if err != nil {
		t.Fatalf("NewDateRange returned error: %v", err)
	}
	if got := len(r.Days()); got != 3 {
		t.Errorf("Days() = %d days, want 3", got)
	}
}

func TestNewDateRangeNormalizesToCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC-7", -7*3600)
	start := time.Date(2025, time.July, 5, 23, 30, 0, 0, loc)
	end := time.Date(2025, time.July, 6, 10, 0, 0, 0, loc)

	r, err := NewDateRange(start, end)
	if err != nil {
		t.Fatalf("NewDateRange returned error: %v", err)
	}
	if !r.Start.Equal(Date(2025, time.July, 5)) || !r.End.Equal(Date(2025, time.July, 6)) {
		t.Errorf("got %s, want [2025-07-05, 2025-07-06)", r)
	}
}

func TestDateRangeContainsIsHalfOpen(t *testing.T) {
	r := MustDateRange(Date(2025, time.July, 5), Date(2025, time.July, 8))
	if !r.Contains(Date(2025, time.July, 5)) {
		t.Error("start day should be covered")
	}
	if r.Contains(Date(2025, time.July, 8)) {
		t.Error("end day should not be covered")
	}
}

func TestRoomFromSource(t *testing.T) {
	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{source: "A.listing1", want: "A"},
		{source: "A.listing.extra", want: "A"},
		{source: "Loft", want: "Loft"},
		{source: "", wantErr: true},
		{source: ".listing", wantErr: true},
		{source: "  .x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := RoomFromSource(tt.source)
			if tt.wantErr {
				if !errors.Is(err, ErrAmbiguousRoomMapping) {
					t.Fatalf("got err %v, want ErrAmbiguousRoomMapping", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RoomFromSource(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestRoomFromSummary(t *testing.T) {
	if room, ok := RoomFromSummary(BookedSummary("A")); !ok || room != "A" {
		t.Errorf("RoomFromSummary round trip = %q, %v", room, ok)
	}
	for _, s := range []string{"booked", " booked", "Overbooked lunch", "A booked!"} {
		if _, ok := RoomFromSummary(s); ok {
			t.Errorf("RoomFromSummary(%q) should not match", s)
		}
	}
}

func TestSyncWindow(t *testing.T) {
	now := time.Date(2025, time.July, 1, 15, 4, 5, 0, time.UTC)
	w, err := NewSyncWindow(now, 183)
	if err != nil {
		t.Fatalf("NewSyncWindow returned error: %v", err)
	}
	if !w.Start.Equal(Date(2025, time.July, 1)) {
		t.Errorf("window start = %s", FormatDate(w.Start))
	}
	if !w.End.Equal(Date(2025, time.December, 31)) {
		t.Errorf("window end = %s", FormatDate(w.End))
	}

	if _, err := NewSyncWindow(now, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero horizon: got %v, want ErrInvalidRange", err)
	}

	past := MustDateRange(Date(2025, time.June, 1), Date(2025, time.June, 5))
	endsToday := MustDateRange(Date(2025, time.June, 28), Date(2025, time.July, 1))
	straddle := MustDateRange(Date(2025, time.June, 28), Date(2025, time.July, 2))
	atLimit := MustDateRange(w.End, w.End.AddDate(0, 0, 3))
	straddleLimit := MustDateRange(w.End.AddDate(0, 0, -1), w.End.AddDate(0, 0, 3))

	if w.Overlaps(past) || w.Overlaps(endsToday) || w.Overlaps(atLimit) {
		t.Error("ranges outside the window should not overlap it")
	}
	if !w.Overlaps(straddle) || !w.Overlaps(straddleLimit) {
		t.Error("ranges straddling a window boundary should overlap it")
	}
}

func TestEventKeyMatchesAcrossDesiredAndActual(t *testing.T) {
	r := MustDateRange(Date(2025, time.July, 5), Date(2025, time.July, 10))
	d := DesiredEvent{Summary: "A booked", DateRange: r}
	a := ActualEvent{ID: "evt1", Summary: "A booked", DateRange: r}
	if d.Key() != a.Key() {
		t.Errorf("keys differ: %v vs %v", d.Key(), a.Key())
	}
}
