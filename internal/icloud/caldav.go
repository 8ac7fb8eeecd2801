package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"icalmerge/internal/models"
)

const (
	// DefaultEndpoint is the iCloud CalDAV server.
	DefaultEndpoint = "https://caldav.icloud.com/"

	productID = "-//icalmerge//EN"
)

// Options configures the CalDAV target calendar.
type Options struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
}

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "icalmerge/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient reads and writes all-day booking events on one CalDAV calendar.
type CalDAVClient struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	now          func() time.Time
}

// NewClient connects to the CalDAV server and resolves the calendar named
// opts.CalendarName.
func NewClient(ctx context.Context, logger *slog.Logger, opts Options) (*CalDAVClient, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &customTransport{
			Username:  opts.Username,
			Password:  opts.Password,
			Transport: http.DefaultTransport,
		},
	}

	caldavClient, err := caldav.NewClient(httpClient, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		now:          time.Now,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", opts.CalendarName)
	calendarPath, err := c.findCalendar(ctx, opts.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", opts.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// ListEvents returns the all-day events of the calendar that overlap the window.
func (c *CalDAVClient) ListEvents(ctx context.Context, window models.SyncWindow) ([]models.ActualEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{ical.PropUID, ical.PropSummary, ical.PropDateTimeStart, ical.PropDateTimeEnd},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: window.Start,
				End:   window.End,
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var events []models.ActualEvent
	for _, obj := range objects {
		ev, ok := fromCalendarObject(obj)
		if !ok {
			c.logger.Debug("Skipping calendar object without a valid all-day event", "path", obj.Path)
			continue
		}
		events = append(events, ev)
	}
	c.logger.Info("Fetched existing events from CalDAV", "count", len(events), "objects", len(objects))
	return events, nil
}

// CreateEvent stores a new all-day event as its own calendar object.
func (c *CalDAVClient) CreateEvent(ctx context.Context, ev models.DesiredEvent, description string) error {
	uid := GenerateUID()
	cal := toCalendar(ev, description, uid, c.now())
	objectPath := path.Join(c.calendarPath, uid+".ics")

	if _, err := c.caldavClient.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return fmt.Errorf("failed to create event %v on CalDAV server: %w", ev.Key(), err)
	}
	c.logger.Debug("Stored calendar object", "path", objectPath)
	return nil
}

// DeleteEvent removes the calendar object at the given path.
func (c *CalDAVClient) DeleteEvent(ctx context.Context, id string) error {
	if err := c.webdavClient.RemoveAll(ctx, id); err != nil {
		return fmt.Errorf("failed to delete calendar object %s: %w", id, err)
	}
	return nil
}

// toCalendar builds the VCALENDAR object of a single all-day event.
func toCalendar(ev models.DesiredEvent, description, uid string, now time.Time) *ical.Calendar {
	ve := ical.NewEvent()
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, ev.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())

	start := ical.NewProp(ical.PropDateTimeStart)
	start.SetDate(ev.Start)
	ve.Props.Set(start)
	end := ical.NewProp(ical.PropDateTimeEnd)
	end.SetDate(ev.End)
	ve.Props.Set(end)

	if description != "" {
		ve.Props.SetText(ical.PropDescription, description)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve.Component)
	return cal
}

// fromCalendarObject reads the first VEVENT of obj. Objects holding timed
// events, an empty or inverted date range, or no event at all are reported as
// not ok.
func fromCalendarObject(obj caldav.CalendarObject) (models.ActualEvent, bool) {
	if obj.Data == nil {
		return models.ActualEvent{}, false
	}
	events := obj.Data.Events()
	if len(events) == 0 {
		return models.ActualEvent{}, false
	}
	ve := events[0]

	startProp := ve.Props.Get(ical.PropDateTimeStart)
	endProp := ve.Props.Get(ical.PropDateTimeEnd)
	if startProp == nil || endProp == nil || !isDateValue(startProp) || !isDateValue(endProp) {
		return models.ActualEvent{}, false
	}
	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return models.ActualEvent{}, false
	}
	end, err := endProp.DateTime(time.UTC)
	if err != nil {
		return models.ActualEvent{}, false
	}
	if !models.DateOf(start).Before(models.DateOf(end)) {
		return models.ActualEvent{}, false
	}
	summary, _ := ve.Props.Text(ical.PropSummary)

	return models.ActualEvent{
		ID:        obj.Path,
		Summary:   summary,
		DateRange: models.DateRange{Start: models.DateOf(start), End: models.DateOf(end)},
	}, true
}

func isDateValue(prop *ical.Prop) bool {
	return prop.ValueType() == ical.ValueDate || !strings.Contains(prop.Value, "T")
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
