package domain

import (
	"strconv"
	"time"
)

// Kind is the semantic type a field is compared and rendered as.
type Kind int

const (
	KindText Kind = iota
	KindFloat
	KindInt
	KindTime
)

// displayTimeLayout renders timestamps in audit records.
const displayTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Field describes one mutable attribute of EarthquakeEvent.
type Field struct {
	Column string
	Kind   Kind
	ref    func(*EarthquakeEvent) any
}

// Fields lists every mutable attribute in comparison order. The id is not
// part of the table: it is immutable and identifies the row.
var Fields = []Field{
	{Column: "time", Kind: KindTime, ref: func(e *EarthquakeEvent) any { return &e.Time }},
	{Column: "latitude", Kind: KindFloat, ref: func(e *EarthquakeEvent) any { return &e.Latitude }},
	{Column: "longitude", Kind: KindFloat, ref: func(e *EarthquakeEvent) any { return &e.Longitude }},
	{Column: "depth", Kind: KindFloat, ref: func(e *EarthquakeEvent) any { return &e.Depth }},
	{Column: "magnitude", Kind: KindFloat, ref: func(e *EarthquakeEvent) any { return &e.Magnitude }},
	{Column: "place", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.Place }},
	{Column: "type", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.Type }},
	{Column: "alert", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.Alert }},
	{Column: "tsunami", Kind: KindInt, ref: func(e *EarthquakeEvent) any { return &e.Tsunami }},
	{Column: "city", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.City }},
	{Column: "state_province", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.StateProvince }},
	{Column: "country", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.Country }},
	{Column: "country_code", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.CountryCode }},
	{Column: "formatted_address", Kind: KindText, ref: func(e *EarthquakeEvent) any { return &e.FormattedAddress }},
}

// Columns returns the column names of Fields in order.
func Columns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// Ref returns a pointer to the field inside e, suitable as a scan destination.
func (f Field) Ref(e *EarthquakeEvent) any {
	return f.ref(e)
}

// Value returns the field's current value in e.
func (f Field) Value(e *EarthquakeEvent) any {
	switch p := f.ref(e).(type) {
	case *time.Time:
		return *p
	case *float64:
		return *p
	case *int:
		return *p
	case *string:
		return *p
	default:
		return nil
	}
}

// Equal reports whether a and b hold the same value for this field.
func (f Field) Equal(a, b *EarthquakeEvent) bool {
	if f.Kind == KindTime {
		return f.Value(a).(time.Time).Equal(f.Value(b).(time.Time))
	}
	return f.Value(a) == f.Value(b)
}

// Display renders the field's value in e for the audit trail.
func (f Field) Display(e *EarthquakeEvent) string {
	switch v := f.Value(e).(type) {
	case time.Time:
		return v.UTC().Format(displayTimeLayout)
	case float64:
		return formatFloat(v)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return ""
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
