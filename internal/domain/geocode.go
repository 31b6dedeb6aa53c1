package domain

import (
	"context"
	"log/slog"
)

// FillCoordinates sets the coordinates of a region that has none by forward
// geocoding its location name. It reports whether coordinates were set.
// Geocoding failures are logged and leave the region unchanged.
func FillCoordinates(ctx context.Context, region *RegionIdentity, geocoder Geocoder, logger *slog.Logger) bool {
	if geocoder == nil || region.LocationName == "" {
		return false
	}
	if region.Latitude != "" || region.Longitude != "" {
		return false
	}

	result, err := geocoder.ForwardGeocode(ctx, region.LocationName)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"location", region.LocationName,
			"error", err,
		)
		return false
	}
	if !result.Found() {
		logger.Debug("forward geocoding found no match", "location", region.LocationName)
		return false
	}

	region.Latitude = FormatCoordinate(result.Lat)
	region.Longitude = FormatCoordinate(result.Lon)
	return true
}
