package icloud

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"icalmerge/internal/models"
)

func TestCalendarObjectRoundTrip(t *testing.T) {
	ev := models.DesiredEvent{
		Summary:   "A booked",
		DateRange: models.MustDateRange(models.Date(2025, time.July, 5), models.Date(2025, time.July, 10)),
	}
	now := time.Date(2025, time.July, 1, 8, 0, 0, 0, time.UTC)
	cal := toCalendar(ev, "Managed by icalmerge for physical room: A.", "uid-1", now)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		t.Fatalf("encode: %v", err)
	}
	text := buf.String()
	for _, want := range []string{"DTSTART;VALUE=DATE:20250705", "DTEND;VALUE=DATE:20250710", "UID:uid-1", "SUMMARY:A booked"} {
		if !strings.Contains(text, want) {
			t.Errorf("encoded object is missing %q:\n%s", want, text)
		}
	}

	decoded, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := fromCalendarObject(caldav.CalendarObject{Path: "/cal/uid-1.ics", Data: decoded})
	if !ok {
		t.Fatal("fromCalendarObject rejected an all-day event")
	}
	if got.ID != "/cal/uid-1.ics" || got.Key() != ev.Key() {
		t.Errorf("got %s %v, want %v", got.ID, got.Key(), ev.Key())
	}
}

func TestFromCalendarObjectSkipsTimedEvents(t *testing.T) {
	ve := ical.NewEvent()
	ve.Props.SetText(ical.PropUID, "timed")
	ve.Props.SetText(ical.PropSummary, "A booked")
	ve.Props.SetDateTime(ical.PropDateTimeStart, time.Date(2025, time.July, 5, 10, 0, 0, 0, time.UTC))
	ve.Props.SetDateTime(ical.PropDateTimeEnd, time.Date(2025, time.July, 5, 11, 0, 0, 0, time.UTC))
	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, ve.Component)

	if _, ok := fromCalendarObject(caldav.CalendarObject{Path: "/cal/timed.ics", Data: cal}); ok {
		t.Error("timed events should not be managed")
	}
	if _, ok := fromCalendarObject(caldav.CalendarObject{Path: "/cal/empty.ics"}); ok {
		t.Error("objects without data should be skipped")
	}
}

func TestFromCalendarObjectSkipsEmptyRanges(t *testing.T) {
	for name, end := range map[string]time.Time{
		"empty":    models.Date(2025, time.July, 20),
		"inverted": models.Date(2025, time.July, 18),
	} {
		t.Run(name, func(t *testing.T) {
			ve := ical.NewEvent()
			ve.Props.SetText(ical.PropUID, name)
			ve.Props.SetText(ical.PropSummary, "B booked")
			start := ical.NewProp(ical.PropDateTimeStart)
			start.SetDate(models.Date(2025, time.July, 20))
			ve.Props.Set(start)
			endProp := ical.NewProp(ical.PropDateTimeEnd)
			endProp.SetDate(end)
			ve.Props.Set(endProp)
			cal := ical.NewCalendar()
			cal.Children = append(cal.Children, ve.Component)

			if _, ok := fromCalendarObject(caldav.CalendarObject{Path: "/cal/" + name + ".ics", Data: cal}); ok {
				t.Error("events without a covered day should not be managed")
			}
		})
	}
}

func TestCustomTransportAddsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "user" || p != "app-password" {
			t.Errorf("basic auth = %q %q %v", u, p, ok)
		}
		if ua := r.Header.Get("User-Agent"); ua != "icalmerge/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
	}))
	defer srv.Close()

	client := &http.Client{Transport: &customTransport{Username: "user", Password: "app-password", Transport: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
}

func TestGenerateUIDIsUnique(t *testing.T) {
	if GenerateUID() == GenerateUID() {
		t.Error("GenerateUID returned the same value twice")
	}
}
