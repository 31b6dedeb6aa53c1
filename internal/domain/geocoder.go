package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat        float64
	Lon        float64
	PlaceName  string
	Confidence float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider matched the query.
func (r GeocodingResult) Found() bool {
	return r.PlaceName != "" || r.Lat != 0 || r.Lon != 0
}

// Geocoder resolves place names to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a location name to coordinates.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}
