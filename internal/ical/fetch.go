package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"icalmerge/internal/models"
)

const (
	userAgent          = "icalmerge/1.0"
	defaultTimeout     = 15 * time.Second
	defaultConcurrency = 4
	maxBodyBytes       = 10 << 20
)

// Source is one configured booking feed. Name is the source key that maps
// onto a physical room, e.g. "A.airbnb".
type Source struct {
	Name string
	URL  string
}

// Result is the outcome of collecting a single source. Err is non-nil when the
// source could not be used this run; it wraps models.ErrSourceUnavailable when
// the feed refused to serve (rate limiting).
type Result struct {
	Source Source
	Ranges []models.DateRange
	Err    error
}

// Fetcher downloads and parses booking feeds.
type Fetcher struct {
	client      *http.Client
	logger      *slog.Logger
	concurrency int
	parse       ParseOptions
}

// NewFetcher creates a Fetcher. A nil client gets a default one with a
// request timeout; concurrency <= 0 uses a default of 4.
func NewFetcher(logger *slog.Logger, client *http.Client, concurrency int, keywords []string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Fetcher{
		client:      client,
		logger:      logger,
		concurrency: concurrency,
		parse:       ParseOptions{Keywords: keywords},
	}
}

// Collect fetches every source in parallel and returns one Result per source,
// in the order given. A failing source never affects the others. Recurring
// blocks are expanded across the window.
func (f *Fetcher) Collect(ctx context.Context, sources []Source, window models.SyncWindow) []Result {
	results := make([]Result, len(sources))
	opts := f.parse
	opts.From = window.Start
	opts.Until = window.End

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = f.collectOne(ctx, src, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) collectOne(ctx context.Context, src Source, opts ParseOptions) Result {
	res := Result{Source: src}

	f.logger.Debug("Fetching booking feed", "source", src.Name, "url", RedactURL(src.URL))
	body, err := f.fetch(ctx, src)
	if err != nil {
		res.Err = err
		return res
	}

	ranges, err := Parse(body, opts, f.logger.With("source", src.Name))
	if err != nil {
		res.Err = fmt.Errorf("failed to parse feed %s: %w", src.Name, err)
		return res
	}
	res.Ranges = ranges
	f.logger.Info("Collected booking feed", "source", src.Name, "ranges", len(ranges))
	return res
}

func (f *Fetcher) fetch(ctx context.Context, src Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.client.Do(req)
	if err != nil {
		// url.Error repeats the full URL, secret token included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("failed to fetch %s (%s): %w", src.Name, RedactURL(src.URL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s answered %s", models.ErrSourceUnavailable, src.Name, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", src.Name, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", src.Name, err)
	}
	return body, nil
}

// RedactURL hides the path and query of a feed URL for logging. Feed URLs of
// booking platforms carry a secret export token.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
