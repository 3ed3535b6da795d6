package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream feed.
	FeedBaseURL string
	FeedWindow  domain.Window
	FeedTimeout time.Duration

	// OpenCage geocoding configuration. An empty key runs in degraded mode.
	OpenCageAPIKey   string
	OpenCageBaseURL  string
	GeocodeTimeout   time.Duration
	GeocodeInterval  time.Duration
	GeocodeCacheSize int

	// PostgreSQL connection.
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	PostgresMaxConns int32

	// Reconciliation schedule.
	PassInterval   time.Duration
	PassRetries    int
	PassRetryDelay time.Duration
	SummaryWindow  time.Duration
	SummaryLimit   int

	// Optional audit stream. No brokers disables it.
	KafkaBrokers      []string
	KafkaChangesTopic string
}

// GeocodingEnabled reports whether a geocoding credential is configured.
func (c *Config) GeocodingEnabled() bool {
	return c.OpenCageAPIKey != ""
}

// KafkaEnabled reports whether audit records are mirrored to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// PostgresDSN renders the connection settings as a pgx connection URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:   "/" + c.PostgresDB,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	q.Set("pool_max_conns", strconv.Itoa(int(c.PostgresMaxConns)))
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	window, err := domain.ParseWindow(sharedcfg.EnvOrDefault("FEED_WINDOW", string(domain.WindowDay)))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_WINDOW: %w", err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedBaseURL: sharedcfg.EnvOrDefault("FEED_BASE_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"),
		FeedWindow:  window,

		OpenCageAPIKey:  os.Getenv("OPENCAGE_API_KEY"),
		OpenCageBaseURL: sharedcfg.EnvOrDefault("OPENCAGE_BASE_URL", "https://api.opencagedata.com"),

		PostgresHost:     sharedcfg.EnvOrDefault("POSTGRES_HOST", "postgres"),
		PostgresDB:       sharedcfg.EnvOrDefault("POSTGRES_DB", "airflow"),
		PostgresUser:     sharedcfg.EnvOrDefault("POSTGRES_USER", "airflow"),
		PostgresPassword: sharedcfg.EnvOrDefault("POSTGRES_PASSWORD", "airflow"),
		PostgresSSLMode:  sharedcfg.EnvOrDefault("POSTGRES_SSLMODE", "disable"),

		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaChangesTopic: sharedcfg.EnvOrDefault("KAFKA_CHANGES_TOPIC", "earthquake-changes"),
	}

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"FEED_TIMEOUT", "30s", &cfg.FeedTimeout},
		{"GEOCODE_TIMEOUT", "10s", &cfg.GeocodeTimeout},
		{"GEOCODE_INTERVAL", "2s", &cfg.GeocodeInterval},
		{"PASS_INTERVAL", "10m", &cfg.PassInterval},
		{"PASS_RETRY_DELAY", "5m", &cfg.PassRetryDelay},
		{"SUMMARY_WINDOW", "24h", &cfg.SummaryWindow},
	} {
		v, err := parsePositiveDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.PostgresPort, err = parseInt("POSTGRES_PORT", 5432, 1, 65535); err != nil {
		return nil, err
	}
	maxConns, err := parseInt("POSTGRES_MAX_CONNS", 4, 1, 100)
	if err != nil {
		return nil, err
	}
	cfg.PostgresMaxConns = int32(maxConns)
	if cfg.GeocodeCacheSize, err = parseInt("GEOCODE_CACHE_SIZE", 1000, 1, 1_000_000); err != nil {
		return nil, err
	}
	if cfg.PassRetries, err = parseInt("PASS_RETRIES", 1, 0, 10); err != nil {
		return nil, err
	}
	if cfg.SummaryLimit, err = parseInt("SUMMARY_LIMIT", 5, 1, 100); err != nil {
		return nil, err
	}

	if u, err := url.Parse(cfg.FeedBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.New("invalid FEED_BASE_URL: must be an http(s) URL")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}
