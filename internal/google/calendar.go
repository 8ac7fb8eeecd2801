package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"icalmerge/internal/models"
)

// bookedQuery narrows the server-side listing to candidate events; the
// naming convention is enforced again by the caller.
const bookedQuery = "booked"

// CalendarClient reads and writes all-day booking events on one Google Calendar.
type CalendarClient struct {
	service    *calendar.Service
	calendarID string
	logger     *slog.Logger
}

// Credentials locates the OAuth client and the saved user token.
type Credentials struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string
	TokenFile       string
}

// NewClient creates a Google Calendar client for calendarID using the token
// saved by the auth command. Token refreshes happen in memory.
func NewClient(ctx context.Context, logger *slog.Logger, creds Credentials, calendarID string) (*CalendarClient, error) {
	config, err := getOAuthConfig(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token from %s: %w. Please run the 'auth' command first", creds.TokenFile, err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return NewClientWithService(logger, service, calendarID), nil
}

// NewClientWithService wraps an already configured calendar service.
func NewClientWithService(logger *slog.Logger, service *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{service: service, calendarID: calendarID, logger: logger}
}

// ListEvents returns every all-day event in the window whose text matches
// "booked". All result pages are read before returning.
func (c *CalendarClient) ListEvents(ctx context.Context, window models.SyncWindow) ([]models.ActualEvent, error) {
	c.logger.Debug("Listing booked events", "calendarID", c.calendarID, "window", window.String())

	var items []*calendar.Event
	err := c.service.Events.List(c.calendarID).
		Q(bookedQuery).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := c.toActualEvents(items)
	c.logger.Info("Fetched existing events from Google Calendar", "count", len(events), "calendarID", c.calendarID)
	return events, nil
}

// CreateEvent inserts an all-day event; End is exclusive.
func (c *CalendarClient) CreateEvent(ctx context.Context, ev models.DesiredEvent, description string) error {
	_, err := c.service.Events.Insert(c.calendarID, toGoogleEvent(ev, description)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to insert event %v: %w", ev.Key(), err)
	}
	return nil
}

// DeleteEvent removes the event with the given Google event ID.
func (c *CalendarClient) DeleteEvent(ctx context.Context, id string) error {
	if err := c.service.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	return nil
}

// toActualEvents keeps all-day events with an ID and a non-empty date range.
// Timed events are never managed by this tool and are skipped.
func (c *CalendarClient) toActualEvents(items []*calendar.Event) []models.ActualEvent {
	var out []models.ActualEvent
	for _, item := range items {
		if item.Id == "" || item.Start == nil || item.End == nil || item.Start.Date == "" || item.End.Date == "" {
			continue
		}
		start, err := models.ParseDate(item.Start.Date)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable start date", "id", item.Id, "date", item.Start.Date)
			continue
		}
		end, err := models.ParseDate(item.End.Date)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable end date", "id", item.Id, "date", item.End.Date)
			continue
		}
		if !start.Before(end) {
			c.logger.Warn("Skipping event with an empty or inverted date range", "id", item.Id, "start", item.Start.Date, "end", item.End.Date)
			continue
		}
		out = append(out, models.ActualEvent{
			ID:        item.Id,
			Summary:   item.Summary,
			DateRange: models.DateRange{Start: start, End: end},
		})
	}
	return out
}

func toGoogleEvent(ev models.DesiredEvent, description string) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Summary,
		Description: description,
		Start:       &calendar.EventDateTime{Date: models.FormatDate(ev.Start)},
		End:         &calendar.EventDateTime{Date: models.FormatDate(ev.End)},
	}
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(creds Credentials) (*oauth2.Config, error) {
	return getOAuthConfig(creds)
}

// getOAuthConfig returns an OAuth2 config with read/write calendar scope.
// It prioritizes the client ID/secret over the credentials file.
func getOAuthConfig(creds Credentials) (*oauth2.Config, error) {
	if creds.ClientID != "" && creds.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(creds.CredentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or place the OAuth client file there", creds.CredentialsFile)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// TokenFromWeb exchanges an authorization code for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path, readable by the owner only.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
