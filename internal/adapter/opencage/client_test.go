package opencage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(testKey, baseURL, 5*time.Second, 0, observability.NewMetricsForTesting(), testLogger())
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/v1/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "35.68,139.75", q.Get("q"))
		assert.Equal(t, testKey, q.Get("key"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "1", q.Get("no_annotations"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{
		  "results": [{
		    "formatted": "Chiyoda, Tokyo, Japan",
		    "components": {"city": "Chiyoda", "state": "Tokyo", "country": "Japan", "country_code": "jp"}
		  }],
		  "status": {"code": 200, "message": "OK"}
		}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ReverseGeocode(context.Background(), 35.68, 139.75)
	require.NoError(t, err)

	assert.Equal(t, "Chiyoda", result.City)
	assert.Equal(t, "Tokyo", result.StateProvince)
	assert.Equal(t, "Japan", result.Country)
	assert.Equal(t, "jp", result.CountryCode)
	assert.Equal(t, "Chiyoda, Tokyo, Japan", result.FormattedAddress)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("success")), 0)
}

func TestClient_ReverseGeocode_ComponentFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{
		  "results": [{
		    "formatted": "Talca, Maule, Chile",
		    "components": {"village": "Talca", "province": "Maule", "country": "Chile", "country_code": "cl"}
		  }]
		}`)
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), -35.4, -71.6)
	require.NoError(t, err)
	assert.Equal(t, "Talca", result.City)
	assert.Equal(t, "Maule", result.StateProvince)
}

func TestClient_ReverseGeocode_TownBeforeVillage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":[{"formatted":"x","components":{"town":"Town","village":"Village"}}]}`)
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Town", result.City)
}

func TestClient_ReverseGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"results": [], "status": {"code": 200, "message": "OK"}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ReverseGeocode(context.Background(), 0, -160)
	require.NoError(t, err)
	assert.Empty(t, result.FormattedAddress)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("empty")), 0)
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":{"code":401,"message":"invalid API key"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ReverseGeocode(context.Background(), 35.68, 139.75)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("error")), 0)
}

func TestClient_ReverseGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL, 50*time.Millisecond, 0, observability.NewMetricsForTesting(), testLogger())
	_, err := c.ReverseGeocode(context.Background(), 35.68, 139.75)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)
}

func TestClient_ReverseGeocode_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL, time.Second, 100*time.Millisecond, observability.NewMetricsForTesting(), testLogger())

	start := time.Now()
	for range 3 {
		_, err := c.ReverseGeocode(context.Background(), 1, 1)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestClient_ReverseGeocode_RateLimitHonorsContext(t *testing.T) {
	c := NewClient(testKey, "http://127.0.0.1:1", time.Second, time.Hour, observability.NewMetricsForTesting(), testLogger())
	c.limiter.Allow() // drain the single burst token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ReverseGeocode(ctx, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
