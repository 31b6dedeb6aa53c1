package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		wantOK   bool
		wantErr  bool
		inRange  bool
		swapped  bool
	}{
		{name: "valid", lat: "47.49", lon: "-121.83", wantOK: true, inRange: true},
		{name: "empty", lat: "", lon: "-121.83"},
		{name: "swapped", lat: "-121.83", lon: "47.49", wantOK: true, swapped: true},
		{name: "both out of range", lat: "200", lon: "200", wantOK: true},
		{name: "garbage", lat: "north", lon: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok, err := ParseCoordinates(tt.lat, tt.lon)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.inRange, c.InRange())
			assert.Equal(t, tt.swapped, c.LooksSwapped())
		})
	}
}

func TestFormatCoordinate(t *testing.T) {
	assert.Equal(t, "30.2672", FormatCoordinate(30.2672))
	assert.Equal(t, "-97.7431", FormatCoordinate(-97.7431))
	assert.Equal(t, "1.234568", FormatCoordinate(1.23456789))
	assert.Equal(t, "0", FormatCoordinate(0))
}
