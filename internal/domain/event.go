package domain

import (
	"fmt"
	"time"
)

// Sentinel values stored when enrichment is unavailable.
const (
	UnknownValue       = "Unknown"
	UnknownCountryCode = "UN"
)

// Defaults applied to optional upstream properties.
const (
	DefaultAlert   = "none"
	DefaultTsunami = 0
)

// Window selects which USGS summary feed to read.
type Window string

const (
	WindowHour  Window = "hour"
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow validates a feed window name.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowHour, WindowDay, WindowWeek, WindowMonth:
		return w, nil
	default:
		return "", fmt.Errorf("unknown feed window %q: want hour, day, week or month", s)
	}
}

// RawEvent is one feature from the upstream feed, before validation.
type RawEvent struct {
	ID          string
	Coordinates []float64 // [lon, lat, depth]
	Properties  map[string]any
}

// LocationDetails holds normalized reverse-geocoding attributes.
type LocationDetails struct {
	City             string `json:"city"`
	StateProvince    string `json:"state_province"`
	Country          string `json:"country"`
	CountryCode      string `json:"country_code"`
	FormattedAddress string `json:"formatted_address"`
}

// EarthquakeEvent is the current stored state of one upstream event.
type EarthquakeEvent struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Depth     float64   `json:"depth"`
	Magnitude float64   `json:"magnitude"`
	Place     string    `json:"place"`
	Type      string    `json:"type"`
	Alert     string    `json:"alert"`
	Tsunami   int       `json:"tsunami"`

	// Enrichment fields.
	City             string `json:"city"`
	StateProvince    string `json:"state_province"`
	Country          string `json:"country"`
	CountryCode      string `json:"country_code"`
	FormattedAddress string `json:"formatted_address"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// WithLocation returns a copy of the event carrying the given enrichment.
func (e EarthquakeEvent) WithLocation(loc LocationDetails) EarthquakeEvent {
	e.City = loc.City
	e.StateProvince = loc.StateProvince
	e.Country = loc.Country
	e.CountryCode = loc.CountryCode
	e.FormattedAddress = loc.FormattedAddress
	return e
}

// FieldChange is one append-only audit record of a field-level revision.
type FieldChange struct {
	ID           int64     `json:"id,omitempty"`
	EarthquakeID string    `json:"earthquake_id"`
	FieldName    string    `json:"field_name"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	UpdateTime   time.Time `json:"update_time"`
}

// CountrySummary aggregates recent events for one country.
type CountrySummary struct {
	Country      string  `json:"country"`
	Events       int64   `json:"events"`
	AvgMagnitude float64 `json:"avg_magnitude"`
}
