// Package domain models USGS earthquake events and the reconciliation rules
// that keep a stored copy of the feed in sync with upstream revisions.
//
// # Data Source
//
// Events come from the USGS Earthquake Hazards Program GeoJSON summary feeds,
// e.g. https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson.
// Each feed covers a trailing window (hour, day, week, month) and is regenerated
// by USGS every minute. The same event appears in many consecutive snapshots,
// often with revised values (magnitude, depth, location, review status).
//
// # USGS Feed Conventions
//
// Identity:
//
//	Every feature carries a stable network-assigned "id", e.g. "us7000abcd".
//	It is the natural key: one stored row per id.
//
// Coordinates:
//
//	geometry.coordinates = [longitude, latitude, depth_km].
//	Longitude comes first, as in all GeoJSON.
//
// Time:
//
//	properties.time is milliseconds since the Unix epoch, UTC.
//
// Optional properties:
//
//	"alert" (PAGER level: green, yellow, orange, red) is null for most events
//	and is stored as "none". "tsunami" is 0 or 1 and is stored as 0 when absent.
//	Defaults are applied by [ParseRawEvent] before any comparison so that an
//	omission upstream never reads as a change from a stored default.
//
// # Reconciliation
//
// [Reconcile] compares an incoming event against the stored one field by field,
// walking the fixed attribute table [Fields]. A new id is an insert, a revised
// id is an update plus one [FieldChange] per differing field, and an identical
// id is a no-op. Enrichment fields are compared like any other field, so a
// gazetteer correction is audited the same way as a magnitude revision.
//
// # Location Enrichment
//
// Reverse geocoding is best effort. [EnrichLocation] never fails: without a
// provider, or when the provider errors or finds nothing, it returns the
// sentinel from [UnknownLocation] ("Unknown" / "UN").
package domain
