package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"icalmerge/internal/consolidate"
	"icalmerge/internal/ical"
	"icalmerge/internal/models"
	"icalmerge/internal/reconcile"
)

// ErrAllSourcesFailed aborts a pass when not a single feed could be read.
var ErrAllSourcesFailed = errors.New("every source failed")

// Collector fetches the booked ranges of each source.
type Collector interface {
	Collect(ctx context.Context, sources []ical.Source, window models.SyncWindow) []ical.Result
}

// Calendar is the shared calendar the booked events are written to.
type Calendar interface {
	ListEvents(ctx context.Context, window models.SyncWindow) ([]models.ActualEvent, error)
	CreateEvent(ctx context.Context, ev models.DesiredEvent, description string) error
	DeleteEvent(ctx context.Context, id string) error
}

// Report summarizes one pass.
type Report struct {
	Window        models.SyncWindow
	Sources       int
	FailedSources int
	HeldRooms     []string
	Created       int
	Deleted       int
	Failed        int
	DryRun        bool
}

// Syncer orchestrates the consolidation of booking feeds into the shared calendar.
type Syncer struct {
	logger      *slog.Logger
	collector   Collector
	calendar    Calendar
	sources     []ical.Source
	horizonDays int
	dryRun      bool
	now         func() time.Time
}

// NewSyncer creates a new Syncer. collector may be nil for passes that never
// read the feeds (Clean).
func NewSyncer(logger *slog.Logger, collector Collector, calendar Calendar, sources []ical.Source, horizonDays int, dryRun bool) *Syncer {
	return &Syncer{
		logger:      logger,
		collector:   collector,
		calendar:    calendar,
		sources:     sources,
		horizonDays: horizonDays,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// Description is the text attached to every event created for room.
func Description(room string) string {
	return fmt.Sprintf("Managed by icalmerge for physical room: %s.", room)
}

// Sync performs a full synchronization cycle: collect every feed, merge each
// room's bookings and converge the calendar onto them.
//
// A room with at least one failed source is held: none of its events are
// created or deleted this pass. The pass aborts before any mutation when all
// sources fail or the calendar cannot be listed. Failed mutations do not stop
// the remaining ones; their errors are joined into the returned error.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	window, err := models.NewSyncWindow(s.now(), s.horizonDays)
	if err != nil {
		return Report{}, err
	}
	report := Report{Window: window, Sources: len(s.sources), DryRun: s.dryRun}
	s.logger.Info("Starting sync cycle.", "window", window.String(), "sources", len(s.sources))

	if len(s.sources) == 0 {
		return report, errors.New("no sources configured")
	}

	raw := make(map[string][]models.DateRange)
	held := make(map[string]bool)
	var sourceErrs []error
	for _, res := range s.collector.Collect(ctx, s.sources, window) {
		room, err := models.RoomFromSource(res.Source.Name)
		if err != nil {
			return report, err
		}
		if res.Err != nil {
			report.FailedSources++
			held[room] = true
			sourceErrs = append(sourceErrs, res.Err)
			s.logger.Warn("Could not read source, holding its room for this pass",
				"source", res.Source.Name, "room", room, "url", ical.RedactURL(res.Source.URL), "error", res.Err)
			continue
		}
		raw[res.Source.Name] = append(raw[res.Source.Name], res.Ranges...)
		s.logger.Debug("Collected source", "source", res.Source.Name, "ranges", len(res.Ranges))
	}
	for room := range held {
		report.HeldRooms = append(report.HeldRooms, room)
	}
	slices.Sort(report.HeldRooms)

	if report.FailedSources == len(s.sources) {
		return report, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(sourceErrs...))
	}

	bookings, err := consolidate.ByRoom(raw)
	if err != nil {
		return report, fmt.Errorf("failed to consolidate bookings: %w", err)
	}
	desired := reconcile.Desired(bookings, window)

	actual, err := s.calendar.ListEvents(ctx, window)
	if err != nil {
		return report, fmt.Errorf("failed to list calendar events: %w", err)
	}
	managed := reconcile.Managed(actual, window)
	s.logger.Info("Fetched calendar events.", "count", len(actual), "managed", len(managed))

	if err := reconcile.Validate(desired, managed); err != nil {
		return report, err
	}

	desired = slices.DeleteFunc(desired, func(ev models.DesiredEvent) bool { return held[roomOf(ev.Summary)] })
	managed = slices.DeleteFunc(managed, func(ev models.ActualEvent) bool { return held[roomOf(ev.Summary)] })

	plan := reconcile.Reconcile(desired, managed)
	if plan.Empty() {
		s.logger.Info("Calendar already up to date.")
	}

	errs := s.apply(ctx, plan, &report)
	s.logReport(report)
	return report, errors.Join(errs...)
}

// Clean deletes every managed event in the window. A non-empty room limits
// the deletion to that room's events.
func (s *Syncer) Clean(ctx context.Context, room string) (Report, error) {
	window, err := models.NewSyncWindow(s.now(), s.horizonDays)
	if err != nil {
		return Report{}, err
	}
	report := Report{Window: window, DryRun: s.dryRun}
	s.logger.Info("Starting clean.", "window", window.String(), "room", room)

	actual, err := s.calendar.ListEvents(ctx, window)
	if err != nil {
		return report, fmt.Errorf("failed to list calendar events: %w", err)
	}
	managed := reconcile.Managed(actual, window)
	if room != "" {
		managed = slices.DeleteFunc(managed, func(ev models.ActualEvent) bool { return roomOf(ev.Summary) != room })
	}

	errs := s.apply(ctx, reconcile.Plan{ToDelete: managed}, &report)
	s.logReport(report)
	return report, errors.Join(errs...)
}

// BookedDays returns every booked day of one configured source within the
// month containing month, sorted and without duplicates.
func (s *Syncer) BookedDays(ctx context.Context, sourceName string, month time.Time) ([]time.Time, error) {
	idx := slices.IndexFunc(s.sources, func(src ical.Source) bool { return src.Name == sourceName })
	if idx < 0 {
		return nil, fmt.Errorf("unknown source %q", sourceName)
	}

	first := models.Date(month.Year(), month.Month(), 1)
	window := models.SyncWindow{Start: first, End: first.AddDate(0, 1, 0)}

	results := s.collector.Collect(ctx, s.sources[idx:idx+1], window)
	if len(results) != 1 {
		return nil, fmt.Errorf("collector returned %d results for one source", len(results))
	}
	if results[0].Err != nil {
		return nil, fmt.Errorf("failed to read source %q: %w", sourceName, results[0].Err)
	}

	var days []time.Time
	monthRange := models.DateRange(window)
	for _, r := range consolidate.Merge(results[0].Ranges) {
		for _, day := range r.Days() {
			if monthRange.Contains(day) {
				days = append(days, day)
			}
		}
	}
	return days, nil
}

// apply runs the deletions and then the creations of plan. Each failure is
// logged and collected; the remaining actions still run.
func (s *Syncer) apply(ctx context.Context, plan reconcile.Plan, report *Report) []error {
	var errs []error

	for _, ev := range plan.ToDelete {
		if s.dryRun {
			s.logger.Info("[DRY RUN] Would delete event", "summary", ev.Summary, "start", models.FormatDate(ev.Start), "end", models.FormatDate(ev.End), "id", ev.ID)
			report.Deleted++
			continue
		}
		if err := s.calendar.DeleteEvent(ctx, ev.ID); err != nil {
			s.logger.Error("Failed to delete event", "summary", ev.Summary, "id", ev.ID, "error", err)
			report.Failed++
			errs = append(errs, err)
			continue
		}
		s.logger.Info("Deleted event", "summary", ev.Summary, "start", models.FormatDate(ev.Start), "end", models.FormatDate(ev.End))
		report.Deleted++
	}

	for _, ev := range plan.ToCreate {
		if s.dryRun {
			s.logger.Info("[DRY RUN] Would create event", "summary", ev.Summary, "start", models.FormatDate(ev.Start), "end", models.FormatDate(ev.End))
			report.Created++
			continue
		}
		if err := s.calendar.CreateEvent(ctx, ev, Description(roomOf(ev.Summary))); err != nil {
			s.logger.Error("Failed to create event", "summary", ev.Summary, "start", models.FormatDate(ev.Start), "error", err)
			report.Failed++
			errs = append(errs, err)
			continue
		}
		s.logger.Info("Created event", "summary", ev.Summary, "start", models.FormatDate(ev.Start), "end", models.FormatDate(ev.End))
		report.Created++
	}
	return errs
}

func (s *Syncer) logReport(r Report) {
	s.logger.Info("Sync cycle finished.",
		"created", r.Created,
		"deleted", r.Deleted,
		"failed", r.Failed,
		"failedSources", r.FailedSources,
		"heldRooms", r.HeldRooms,
		"dryRun", r.DryRun,
	)
}

func roomOf(summary string) string {
	room, _ := models.RoomFromSummary(summary)
	return room
}
