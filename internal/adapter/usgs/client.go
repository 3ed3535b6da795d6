// Package usgs reads the USGS Earthquake Hazards Program GeoJSON summary feeds.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FetchError reports that the feed could not be retrieved or decoded.
// The whole pass aborts on it.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches feed snapshots over HTTP. It does not retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client rooted at baseURL, e.g.
// https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// FeedURL returns the summary feed URL for a window.
func (c *Client) FeedURL(window domain.Window) string {
	return fmt.Sprintf("%s/all_%s.geojson", c.baseURL, window)
}

// Fetch retrieves the current snapshot for window and returns its features.
func (c *Client) Fetch(ctx context.Context, window domain.Window) ([]domain.RawEvent, error) {
	start := time.Now()
	events, err := c.fetch(ctx, c.FeedURL(window))
	c.metrics.FeedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FeedRequests.WithLabelValues("success").Inc()
	c.logger.Debug("feed fetched", "window", window, "features", len(events), "duration", time.Since(start))
	return events, nil
}

func (c *Client) fetch(ctx context.Context, feedURL string) ([]domain.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", body)}
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode feature collection: %w", err)}
	}

	events := make([]domain.RawEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		events = append(events, toRawEvent(f))
	}
	return events, nil
}

// toRawEvent flattens a GeoJSON feature. Validation is left to domain.ParseRawEvent.
func toRawEvent(f *geojson.Feature) domain.RawEvent {
	raw := domain.RawEvent{ID: f.ID, Properties: f.Properties}
	if p, ok := f.Geometry.(*geom.Point); ok && !p.Empty() {
		raw.Coordinates = append([]float64(nil), p.FlatCoords()...)
	}
	return raw
}
