package domain

import (
	"context"
	"log/slog"
	"strings"
)

// UnknownLocation is the sentinel enrichment used whenever a lookup cannot be made.
func UnknownLocation(lat, lon float64) LocationDetails {
	return LocationDetails{
		City:             UnknownValue,
		StateProvince:    UnknownValue,
		Country:          UnknownValue,
		CountryCode:      UnknownCountryCode,
		FormattedAddress: "Coordinates: " + formatFloat(lat) + ", " + formatFloat(lon),
	}
}

// EnrichLocation reverse geocodes a coordinate pair. It never fails; anything
// short of a usable result resolves to UnknownLocation. A nil geocoder means no
// credential is configured.
func EnrichLocation(ctx context.Context, geocoder Geocoder, lat, lon float64, logger *slog.Logger) LocationDetails {
	if geocoder == nil {
		return UnknownLocation(lat, lon)
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
		return UnknownLocation(lat, lon)
	}
	if result.FormattedAddress == "" {
		logger.Warn("no location details found", "lat", lat, "lon", lon)
		return UnknownLocation(lat, lon)
	}

	return LocationDetails{
		City:             orUnknown(result.City),
		StateProvince:    orUnknown(result.StateProvince),
		Country:          orUnknown(result.Country),
		CountryCode:      countryCode(result.CountryCode),
		FormattedAddress: result.FormattedAddress,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return UnknownValue
	}
	return s
}

func countryCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownCountryCode
	}
	return strings.ToUpper(s)
}
