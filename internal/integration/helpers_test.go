//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/adapter/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres runs a throwaway Postgres and returns a migrated store over it.
func startPostgres(ctx context.Context, t *testing.T) (*pgxpool.Pool, *postgres.Store) {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("quakes"),
		tcpostgres.WithUsername("quakes"),
		tcpostgres.WithPassword("quakes"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgres.NewStore(pool, discardLogger())
	require.NoError(t, store.Migrate(ctx))
	return pool, store
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("quake-test"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// feedServer serves a GeoJSON summary feed whose body can be swapped between passes.
type feedServer struct {
	*httptest.Server
	mu   sync.Mutex
	body string
}

func newFeedServer(t *testing.T, body string) *feedServer {
	t.Helper()
	fs := &feedServer{body: body}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = io.WriteString(w, fs.body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = body
}

type quake struct {
	id       string
	lat, lon float64
	mag      float64
	at       time.Time
}

func feedJSON(quakes ...quake) string {
	features := ""
	for i, q := range quakes {
		if i > 0 {
			features += ","
		}
		features += fmt.Sprintf(`{
			"type": "Feature",
			"id": %q,
			"properties": {"mag": %g, "place": "near %s", "time": %d, "alert": null, "tsunami": 0, "type": "earthquake"},
			"geometry": {"type": "Point", "coordinates": [%g, %g, 10]}
		}`, q.id, q.mag, q.id, q.at.UnixMilli(), q.lon, q.lat)
	}
	return `{"type": "FeatureCollection", "features": [` + features + `]}`
}

// geocodeServer answers OpenCage reverse lookups for Tokyo and Santiago and
// returns no results anywhere else.
func geocodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch q := r.URL.Query().Get("q"); q {
		case "35.68,139.77":
			_, _ = io.WriteString(w, `{"results":[{"components":{"city":"Tokyo","state":"Tokyo","country":"Japan","country_code":"jp"},"formatted":"Tokyo, Japan"}],"status":{"code":200,"message":"OK"}}`)
		case "-33.45,-70.67":
			_, _ = io.WriteString(w, `{"results":[{"components":{"city":"Santiago","state":"Santiago Metropolitan","country":"Chile","country_code":"cl"},"formatted":"Santiago, Chile"}],"status":{"code":200,"message":"OK"}}`)
		default:
			_, _ = io.WriteString(w, `{"results":[],"status":{"code":200,"message":"OK"}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
