package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// FeedFetcher reads the current snapshot of the upstream feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, window domain.Window) ([]domain.RawEvent, error)
}

// EventStore persists reconciled state and answers the summary query.
type EventStore interface {
	FetchByID(ctx context.Context, id string) (*domain.EarthquakeEvent, error)
	Apply(ctx context.Context, r domain.Result) error
	TopCountries(ctx context.Context, since time.Time, limit int) ([]domain.CountrySummary, error)
}

// ChangePublisher mirrors audit records to a downstream stream.
type ChangePublisher interface {
	PublishChanges(ctx context.Context, earthquakeID string, changes []domain.FieldChange) error
}

// Options controls pass scheduling and the summary query.
type Options struct {
	Window        domain.Window
	Interval      time.Duration
	Retries       int
	RetryDelay    time.Duration
	SummaryWindow time.Duration
	SummaryLimit  int
}

// PassReport counts what one reconciliation pass did.
type PassReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	Inserted  int
	Updated   int
	Unchanged int
	Invalid   int
	Failed    int
	Changes   int
	Summary   []domain.CountrySummary
}

// Pipeline drives fetch, enrich, reconcile and store passes.
type Pipeline struct {
	fetcher   FeedFetcher
	store     EventStore
	geocoder  domain.Geocoder
	publisher ChangePublisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready       atomic.Bool
	lastSummary atomic.Pointer[[]domain.CountrySummary]
}

// New creates a Pipeline. geocoder and publisher may be nil: a nil geocoder
// stores sentinel locations, a nil publisher keeps audit records in the store only.
func New(
	fetcher FeedFetcher,
	store EventStore,
	geocoder domain.Geocoder,
	publisher ChangePublisher,
	opts Options,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	if geocoder != nil {
		metrics.GeocodeEnabled.Set(1)
	} else {
		metrics.GeocodeEnabled.Set(0)
	}
	return &Pipeline{
		fetcher:   fetcher,
		store:     store,
		geocoder:  geocoder,
		publisher: publisher,
		opts:      opts,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a pass has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no reconciliation pass has completed yet")
	}
	return nil
}

// LastSummary returns the country summary of the most recent successful pass.
func (p *Pipeline) LastSummary() []domain.CountrySummary {
	if s := p.lastSummary.Load(); s != nil {
		return *s
	}
	return nil
}

// Run executes a pass immediately and then once per interval until ctx is
// cancelled. Ticks missed while a pass is running are dropped, not replayed.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("scheduler started",
		"interval", p.opts.Interval,
		"window", p.opts.Window,
		"retries", p.opts.Retries,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := p.clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		_, _ = p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce runs a pass, repeating a failed one up to Retries times RetryDelay
// apart. It returns the report and error of the last attempt.
func (p *Pipeline) RunOnce(ctx context.Context) (PassReport, error) {
	for attempt := 1; ; attempt++ {
		report, err := p.RunPass(ctx)
		if err == nil || ctx.Err() != nil {
			return report, err
		}
		if attempt > p.opts.Retries {
			p.logger.Error("pass failed, giving up", "attempts", attempt, "error", err)
			return report, err
		}
		p.logger.Warn("pass failed, retrying", "attempt", attempt, "retry_in", p.opts.RetryDelay, "error", err)
		if !retry.SleepWithContext(ctx, p.opts.RetryDelay) {
			return report, ctx.Err()
		}
	}
}

// RunPass performs one complete reconciliation pass. Only a feed failure or
// cancellation aborts it; per-event problems are logged and counted.
func (p *Pipeline) RunPass(ctx context.Context) (PassReport, error) {
	start := p.clock.Now()
	report := PassReport{RunID: uuid.NewString(), StartedAt: start.UTC()}
	log := p.logger.With("run_id", report.RunID)
	log.Info("pass started", "window", p.opts.Window)

	raws, err := p.fetcher.Fetch(ctx, p.opts.Window)
	if err != nil {
		p.metrics.Passes.WithLabelValues("failed").Inc()
		log.Error("feed fetch failed", "error", err)
		return report, fmt.Errorf("fetch feed: %w", err)
	}
	report.Fetched = len(raws)
	p.metrics.EventsFetched.Add(float64(len(raws)))

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			p.metrics.Passes.WithLabelValues("failed").Inc()
			log.Warn("pass interrupted", "processed", report.processed(), "fetched", report.Fetched)
			return report, err
		}
		p.processEvent(ctx, raw, &report, log)
	}

	report.Summary = p.summarize(ctx, log)
	report.Duration = p.clock.Since(start)

	p.metrics.Passes.WithLabelValues("success").Inc()
	p.metrics.PassDuration.Observe(report.Duration.Seconds())
	p.ready.Store(true)

	log.Info("pass completed",
		"fetched", report.Fetched,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"invalid", report.Invalid,
		"failed", report.Failed,
		"changes", report.Changes,
		"duration", report.Duration,
	)
	return report, nil
}

func (r PassReport) processed() int {
	return r.Inserted + r.Updated + r.Unchanged + r.Invalid + r.Failed
}

// processEvent runs one raw event through parse, enrich, reconcile and store.
func (p *Pipeline) processEvent(ctx context.Context, raw domain.RawEvent, report *PassReport, log *slog.Logger) {
	event, err := domain.ParseRawEvent(raw)
	if err != nil {
		report.Invalid++
		p.metrics.InvalidEvents.Inc()
		log.Warn("skipping invalid event", "event_id", raw.ID, "error", err)
		return
	}

	loc := domain.EnrichLocation(ctx, p.geocoder, event.Latitude, event.Longitude, log)
	event = event.WithLocation(loc)

	existing, err := p.store.FetchByID(ctx, event.ID)
	if err != nil {
		p.storeFailed(report, log, event.ID, err)
		return
	}

	// Postgres keeps microseconds; truncating keeps audit timestamps round-trippable.
	result := domain.Reconcile(existing, event, p.clock.Now().UTC().Truncate(time.Microsecond))
	if err := p.store.Apply(ctx, result); err != nil {
		p.storeFailed(report, log, event.ID, err)
		return
	}
	p.metrics.EventsReconciled.WithLabelValues(result.Action.String()).Inc()

	switch result.Action {
	case domain.ActionInsert:
		report.Inserted++
		log.Debug("event inserted", "event_id", event.ID)
	case domain.ActionUpdate:
		report.Updated++
		report.Changes += len(result.Changes)
		p.metrics.FieldChanges.Add(float64(len(result.Changes)))
		log.Info("event updated", "event_id", event.ID, "changed_fields", len(result.Changes))
		p.publish(ctx, result, log)
	default:
		report.Unchanged++
	}
}

func (p *Pipeline) storeFailed(report *PassReport, log *slog.Logger, id string, err error) {
	report.Failed++
	p.metrics.StoreErrors.Inc()
	log.Error("store write failed, event will be retried next pass", "event_id", id, "error", err)
}

func (p *Pipeline) publish(ctx context.Context, result domain.Result, log *slog.Logger) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishChanges(ctx, result.ID, result.Changes); err != nil {
		p.metrics.PublishErrors.Inc()
		log.Warn("publish changes failed", "event_id", result.ID, "error", err)
		return
	}
	p.metrics.ChangesPublished.Add(float64(len(result.Changes)))
}

// summarize runs the country summary over stored state and logs each row.
// A failed query is logged; the pass's writes are already committed.
func (p *Pipeline) summarize(ctx context.Context, log *slog.Logger) []domain.CountrySummary {
	since := p.clock.Now().Add(-p.opts.SummaryWindow)
	summary, err := p.store.TopCountries(ctx, since, p.opts.SummaryLimit)
	if err != nil {
		log.Error("country summary failed", "error", err)
		return nil
	}

	for _, c := range summary {
		log.Info("country summary",
			"country", c.Country,
			"events", c.Events,
			"avg_magnitude", fmt.Sprintf("%.2f", c.AvgMagnitude),
		)
	}
	p.lastSummary.Store(&summary)
	return summary
}
