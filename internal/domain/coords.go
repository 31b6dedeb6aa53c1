package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxLatitude  = decimal.NewFromInt(90)
	maxLongitude = decimal.NewFromInt(180)
)

// Coordinates is a parsed latitude/longitude pair.
type Coordinates struct {
	Lat decimal.Decimal
	Lon decimal.Decimal
}

// ParseCoordinates parses decimal coordinate strings. ok is false when
// either value is empty.
func ParseCoordinates(lat, lon string) (c Coordinates, ok bool, err error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return Coordinates{}, false, nil
	}
	if c.Lat, err = decimal.NewFromString(lat); err != nil {
		return Coordinates{}, false, fmt.Errorf("latitude %q: %w", lat, err)
	}
	if c.Lon, err = decimal.NewFromString(lon); err != nil {
		return Coordinates{}, false, fmt.Errorf("longitude %q: %w", lon, err)
	}
	return c, true, nil
}

// InRange reports whether both values fall within WGS-84 bounds.
func (c Coordinates) InRange() bool {
	return c.Lat.Abs().LessThanOrEqual(maxLatitude) && c.Lon.Abs().LessThanOrEqual(maxLongitude)
}

// LooksSwapped reports whether the pair is out of range as given but would
// be in range with latitude and longitude exchanged.
func (c Coordinates) LooksSwapped() bool {
	if c.InRange() {
		return false
	}
	return Coordinates{Lat: c.Lon, Lon: c.Lat}.InRange()
}

// FormatCoordinate renders a coordinate with at most six decimal places.
func FormatCoordinate(v float64) string {
	return decimal.NewFromFloat(v).Round(6).String()
}
