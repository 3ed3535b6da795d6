package domain

import "context"

// GeocodingResult contains address components returned by a geocoding provider.
// An empty FormattedAddress means the provider found nothing.
type GeocodingResult struct {
	City             string
	StateProvince    string
	Country          string
	CountryCode      string
	FormattedAddress string
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
