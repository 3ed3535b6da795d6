// Package app wires configuration into a ready-to-run pipeline.
package app

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-data-etl/internal/adapter/opencage"
	"github.com/couchcryptid/quake-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/quake-data-etl/internal/adapter/usgs"
	"github.com/couchcryptid/quake-data-etl/internal/config"
	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/couchcryptid/quake-data-etl/internal/pipeline"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
)

// Env holds the initialized clients and the pipeline built from them.
type Env struct {
	Pool     *pgxpool.Pool
	Store    *postgres.Store
	Pipeline *pipeline.Pipeline

	writer *kafka.Writer
	logger *slog.Logger
}

// Init connects to Postgres, applies migrations, and builds the pipeline.
// Callers should defer env.Close().
func Init(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Env, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, eris.Wrap(err, "app: connect postgres")
	}

	store := postgres.NewStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "app: migrate store")
	}

	env := &Env{Pool: pool, Store: store, logger: logger}

	geocoder, err := newGeocoder(cfg, logger, metrics)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var publisher pipeline.ChangePublisher
	if cfg.KafkaEnabled() {
		env.writer = kafka.NewWriter(cfg, logger)
		publisher = env.writer
		logger.Info("change stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaChangesTopic)
	} else {
		logger.Info("change stream disabled")
	}

	feed := usgs.NewClient(cfg.FeedBaseURL, cfg.FeedTimeout, metrics, logger)

	env.Pipeline = pipeline.New(feed, store, geocoder, publisher, Options(cfg), clockwork.NewRealClock(), logger, metrics)
	return env, nil
}

// Options maps configuration onto pipeline scheduling options.
func Options(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Window:        cfg.FeedWindow,
		Interval:      cfg.PassInterval,
		Retries:       cfg.PassRetries,
		RetryDelay:    cfg.PassRetryDelay,
		SummaryWindow: cfg.SummaryWindow,
		SummaryLimit:  cfg.SummaryLimit,
	}
}

// newGeocoder returns nil when no API key is configured so the pipeline
// runs in degraded mode.
func newGeocoder(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.Geocoder, error) {
	if !cfg.GeocodingEnabled() {
		logger.Warn("OPENCAGE_API_KEY not set, locations will be stored as unknown")
		return nil, nil
	}

	client := opencage.NewClient(cfg.OpenCageAPIKey, cfg.OpenCageBaseURL, cfg.GeocodeTimeout, cfg.GeocodeInterval, metrics, logger)
	cached, err := opencage.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
	if err != nil {
		return nil, eris.Wrap(err, "app: geocode cache")
	}
	logger.Info("opencage geocoding enabled",
		"cache_size", cfg.GeocodeCacheSize,
		"timeout", cfg.GeocodeTimeout,
		"interval", cfg.GeocodeInterval,
	)
	return cached, nil
}

// Close releases the Kafka writer and the database pool.
func (e *Env) Close() {
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			e.logger.Error("kafka writer close error", "error", err)
		}
	}
	e.Pool.Close()
}
