package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent marks a feed record that cannot be reconciled.
var ErrInvalidEvent = errors.New("invalid event")

// ParseRawEvent validates a feed record and maps it onto an EarthquakeEvent
// without enrichment. Optional properties are normalized to their defaults
// here, before any comparison against stored state.
func ParseRawEvent(raw RawEvent) (EarthquakeEvent, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return EarthquakeEvent{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if len(raw.Coordinates) < 3 {
		return EarthquakeEvent{}, fmt.Errorf("%w: %s: want 3 coordinates, got %d", ErrInvalidEvent, id, len(raw.Coordinates))
	}

	ms, ok := numberProp(raw.Properties, "time")
	if !ok {
		return EarthquakeEvent{}, fmt.Errorf("%w: %s: missing time", ErrInvalidEvent, id)
	}
	mag, ok := numberProp(raw.Properties, "mag")
	if !ok {
		return EarthquakeEvent{}, fmt.Errorf("%w: %s: missing magnitude", ErrInvalidEvent, id)
	}

	return EarthquakeEvent{
		ID:        id,
		Time:      time.UnixMilli(int64(ms)).UTC(),
		Longitude: raw.Coordinates[0],
		Latitude:  raw.Coordinates[1],
		Depth:     raw.Coordinates[2],
		Magnitude: mag,
		Place:     stringProp(raw.Properties, "place"),
		Type:      stringProp(raw.Properties, "type"),
		Alert:     normalizeAlert(stringProp(raw.Properties, "alert")),
		Tsunami:   normalizeTsunami(raw.Properties),
	}, nil
}

// normalizeAlert maps an absent or empty PAGER alert to DefaultAlert.
func normalizeAlert(alert string) string {
	alert = strings.TrimSpace(alert)
	if alert == "" {
		return DefaultAlert
	}
	return alert
}

func normalizeTsunami(props map[string]any) int {
	v, ok := numberProp(props, "tsunami")
	if !ok {
		return DefaultTsunami
	}
	return int(v)
}

// numberProp reads a JSON number. Null and non-numeric values count as absent.
func numberProp(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
