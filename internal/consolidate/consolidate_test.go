package consolidate

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"icalmerge/internal/models"
)

func jul(day int) time.Time {
	return models.Date(2025, time.July, day)
}

func rng(start, end time.Time) models.DateRange {
	return models.MustDateRange(start, end)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []models.DateRange
		want []models.DateRange
	}{
		{name: "empty", in: nil, want: nil},
		{name: "single", in: []models.DateRange{rng(jul(1), jul(5))}, want: []models.DateRange{rng(jul(1), jul(5))}},
		{
			name: "overlapping",
			in:   []models.DateRange{rng(jul(1), jul(5)), rng(jul(3), jul(8))},
			want: []models.DateRange{rng(jul(1), jul(8))},
		},
		{
			name: "touching ranges merge",
			in:   []models.DateRange{rng(jul(5), jul(8)), rng(jul(8), jul(10))},
			want: []models.DateRange{rng(jul(5), jul(10))},
		},
		{
			name: "one day gap stays apart",
			in:   []models.DateRange{rng(jul(5), jul(8)), rng(jul(9), jul(10))},
			want: []models.DateRange{rng(jul(5), jul(8)), rng(jul(9), jul(10))},
		},
		{
			name: "contained range does not shrink",
			in:   []models.DateRange{rng(jul(1), jul(20)), rng(jul(3), jul(4))},
			want: []models.DateRange{rng(jul(1), jul(20))},
		},
		{
			name: "unsorted input",
			in:   []models.DateRange{rng(jul(20), jul(22)), rng(jul(1), jul(3)), rng(jul(2), jul(6))},
			want: []models.DateRange{rng(jul(1), jul(6)), rng(jul(20), jul(22))},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeDoesNotModifyInput(t *testing.T) {
	in := []models.DateRange{rng(jul(10), jul(12)), rng(jul(1), jul(3))}
	before := append([]models.DateRange(nil), in...)
	Merge(in)
	if !reflect.DeepEqual(in, before) {
		t.Errorf("input was modified: %v", in)
	}
}

func randomRanges(r *rand.Rand, n int) []models.DateRange {
	out := make([]models.DateRange, 0, n)
	for i := 0; i < n; i++ {
		start := jul(1).AddDate(0, 0, r.Intn(60))
		out = append(out, rng(start, start.AddDate(0, 0, 1+r.Intn(7))))
	}
	return out
}

func coveredDays(ranges []models.DateRange) map[time.Time]bool {
	days := make(map[time.Time]bool)
	for _, r := range ranges {
		for _, d := range r.Days() {
			days[d] = true
		}
	}
	return days
}

func TestMergeEqualStartsKeepsLongest(t *testing.T) {
	in := []models.DateRange{
		models.MustDateRange(models.Date(2025, time.July, 5), models.Date(2025, time.July, 6)),
		models.MustDateRange(models.Date(2025, time.July, 5), models.Date(2025, time.July, 9)),
		models.MustDateRange(models.Date(2025, time.July, 5), models.Date(2025, time.July, 7)),
	}
	got := Merge(in)
	if len(got) != 1 || !got[0].End.Equal(models.Date(2025, time.July, 9)) {
		t.Errorf("Merge() = %v, want [2025-07-05, 2025-07-09)", got)
	}
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		in := randomRanges(r, r.Intn(12))
		got := Merge(in)

		if !reflect.DeepEqual(coveredDays(got), coveredDays(in)) {
			t.Fatalf("coverage changed: in=%v out=%v", in, got)
		}
		for j := 1; j < len(got); j++ {
			if !got[j].Start.After(got[j-1].End) {
				t.Fatalf("ranges %s and %s overlap or touch", got[j-1], got[j])
			}
		}
		if again := Merge(got); !reflect.DeepEqual(again, got) {
			t.Fatalf("merge not idempotent: %v -> %v", got, again)
		}

		shuffled := append([]models.DateRange(nil), in...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if other := Merge(shuffled); !reflect.DeepEqual(other, got) {
			t.Fatalf("order dependent: %v vs %v", got, other)
		}
	}
}

func TestByRoomGroupsListingsOfOneRoom(t *testing.T) {
	raw := map[string][]models.DateRange{
		"A.listing1": {rng(jul(5), jul(8)), rng(jul(8), jul(10))},
		"A.listing2": {rng(jul(20), jul(22))},
		"B":          {rng(jul(1), jul(2))},
	}

	got, err := ByRoom(raw)
	if err != nil {
		t.Fatalf("ByRoom returned error: %v", err)
	}

	wantA := []models.BookingRange{
		{Room: "A", DateRange: rng(jul(5), jul(10))},
		{Room: "A", DateRange: rng(jul(20), jul(22))},
	}
	if !reflect.DeepEqual(got["A"], wantA) {
		t.Errorf("room A = %v, want %v", got["A"], wantA)
	}
	if len(got["B"]) != 1 || got["B"][0].Room != "B" {
		t.Errorf("room B = %v", got["B"])
	}
}

func TestByRoomMergesAcrossListings(t *testing.T) {
	raw := map[string][]models.DateRange{
		"A.airbnb":  {rng(jul(5), jul(8))},
		"A.booking": {rng(jul(7), jul(12))},
	}
	got, err := ByRoom(raw)
	if err != nil {
		t.Fatalf("ByRoom returned error: %v", err)
	}
	if len(got["A"]) != 1 || !got["A"][0].End.Equal(jul(12)) {
		t.Errorf("room A = %v, want one range ending 2025-07-12", got["A"])
	}
}

func TestByRoomKeepsRoomsWithoutBookings(t *testing.T) {
	got, err := ByRoom(map[string][]models.DateRange{"C.listing": nil})
	if err != nil {
		t.Fatalf("ByRoom returned error: %v", err)
	}
	bookings, ok := got["C"]
	if !ok || len(bookings) != 0 {
		t.Errorf("room C = %v, %v; want present and empty", bookings, ok)
	}
}

func TestByRoomFailsFast(t *testing.T) {
	if _, err := ByRoom(map[string][]models.DateRange{".bad": nil}); !errors.Is(err, models.ErrAmbiguousRoomMapping) {
		t.Errorf("got %v, want ErrAmbiguousRoomMapping", err)
	}

	bad := models.DateRange{Start: jul(5), End: jul(5)}
	if _, err := ByRoom(map[string][]models.DateRange{"A.x": {bad}}); !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("got %v, want ErrInvalidRange", err)
	}
}
