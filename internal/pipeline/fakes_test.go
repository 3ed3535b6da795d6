package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fetcher ---

type fakeFetcher struct {
	mu     sync.Mutex
	events []domain.RawEvent
	errs   []error // consumed one per call before events are returned
	calls  chan domain.Window
}

func newFakeFetcher(events ...domain.RawEvent) *fakeFetcher {
	return &fakeFetcher{events: events, calls: make(chan domain.Window, 16)}
}

func (f *fakeFetcher) Fetch(_ context.Context, window domain.Window) ([]domain.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls <- window
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.events, nil
}

func (f *fakeFetcher) set(events ...domain.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// --- store ---

// memStore keeps state in memory with the same per-row semantics as the Postgres store.
type memStore struct {
	mu         sync.Mutex
	events     map[string]domain.EarthquakeEvent
	changes    []domain.FieldChange
	failIDs    map[string]bool
	summaryErr error
	applies    int
}

func newMemStore() *memStore {
	return &memStore{events: map[string]domain.EarthquakeEvent{}, failIDs: map[string]bool{}}
}

func (s *memStore) FetchByID(_ context.Context, id string) (*domain.EarthquakeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failIDs[id] {
		return nil, errStoreDown
	}
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) Apply(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applies++
	switch r.Action {
	case domain.ActionInsert:
		s.events[r.ID] = r.Event
	case domain.ActionUpdate:
		e := r.Event
		at := r.UpdatedAt
		e.UpdatedAt = &at
		s.events[r.ID] = e
		for i, c := range r.Changes {
			c.ID = int64(len(s.changes) + i + 1)
			s.changes = append(s.changes, c)
		}
	}
	return nil
}

func (s *memStore) TopCountries(_ context.Context, since time.Time, limit int) ([]domain.CountrySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summaryErr != nil {
		return nil, s.summaryErr
	}

	type agg struct {
		n   int64
		sum float64
	}
	byCountry := map[string]*agg{}
	for _, e := range s.events {
		if e.Time.Before(since) {
			continue
		}
		a, ok := byCountry[e.Country]
		if !ok {
			a = &agg{}
			byCountry[e.Country] = a
		}
		a.n++
		a.sum += e.Magnitude
	}

	out := make([]domain.CountrySummary, 0, len(byCountry))
	for country, a := range byCountry {
		out = append(out, domain.CountrySummary{Country: country, Events: a.n, AvgMagnitude: a.sum / float64(a.n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}
		return out[i].Country < out[j].Country
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) get(id string) domain.EarthquakeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

func (s *memStore) auditFor(id string) []domain.FieldChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FieldChange
	for _, c := range s.changes {
		if c.EarthquakeID == id {
			out = append(out, c)
		}
	}
	return out
}

// --- geocoder ---

type fakeGeocoder struct {
	byLat map[float64]domain.GeocodingResult
	err   error
	calls int
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, lat, _ float64) (domain.GeocodingResult, error) {
	g.calls++
	if g.err != nil {
		return domain.GeocodingResult{}, g.err
	}
	return g.byLat[lat], nil
}

// --- publisher ---

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]domain.FieldChange
	err       error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[string][]domain.FieldChange{}}
}

func (p *fakePublisher) PublishChanges(_ context.Context, id string, changes []domain.FieldChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.published[id] = append(p.published[id], changes...)
	return nil
}
