// Package opencage implements reverse geocoding against the OpenCage Data API.
package opencage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"golang.org/x/time/rate"
)

// Client implements domain.Geocoder using the OpenCage geocoding API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenCage client. baseURL is normally https://api.opencagedata.com.
// Successive requests are spaced at least interval apart; zero disables the limit.
func NewClient(apiKey, baseURL string, timeout, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode converts coordinates to address components. A response
// without results yields an empty GeocodingResult and no error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":              {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)},
		"key":            {c.apiKey},
		"language":       {"en"},
		"limit":          {"1"},
		"no_annotations": {"1"},
	}
	fullURL := c.baseURL + "/geocode/v1/json?" + params.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("wait for rate limiter: %w", err)
	}

	start := time.Now()
	result, err := c.doRequest(ctx, fullURL)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
	case result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the API key; keep it out of the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("opencage API error: status %d: %s", resp.StatusCode, body)
	}

	var ocResp response
	if err := json.NewDecoder(resp.Body).Decode(&ocResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(ocResp.Results) == 0 {
		c.logger.Debug("opencage returned no results", "status", ocResp.Status.Message)
		return domain.GeocodingResult{}, nil
	}

	r := ocResp.Results[0]
	return domain.GeocodingResult{
		City:             firstNonEmpty(r.Components.City, r.Components.Town, r.Components.Village),
		StateProvince:    firstNonEmpty(r.Components.State, r.Components.Province),
		Country:          r.Components.Country,
		CountryCode:      r.Components.CountryCode,
		FormattedAddress: r.Formatted,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OpenCage API response types.

type response struct {
	Results []result `json:"results"`
	Status  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type result struct {
	Formatted  string     `json:"formatted"`
	Components components `json:"components"`
}

type components struct {
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}
