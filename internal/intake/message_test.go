package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in       string
		ok       bool
		lat, lon float64
	}{
		{"14.70, -17.45", true, 14.70, -17.45},
		{"14.70 -17.45", true, 14.70, -17.45},
		{"14.70;-17.45", true, 14.70, -17.45},
		{" -33.9,18.4 ", true, -33.9, 18.4},
		{"14.70", false, 0, 0},
		{"14.70, abc", false, 0, 0},
		{"95, 10", false, 0, 0},
		{"10, 190", false, 0, 0},
		{"NaN, 10", false, 0, 0},
		{"1, 2, 3", false, 0, 0},
		{"", false, 0, 0},
	}
	for _, tt := range tests {
		loc, ok := ParseCoordinates(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if !tt.ok {
			continue
		}
		lat, lon, valid := loc.Coordinates()
		assert.True(t, valid)
		assert.Equal(t, tt.lat, lat)
		assert.Equal(t, tt.lon, lon)
	}
}

func TestLocationRequiresBothCoordinates(t *testing.T) {
	v := 14.7
	_, _, ok := Location{Latitude: &v}.Coordinates()
	assert.False(t, ok)
	_, _, ok = Location{Longitude: &v}.Coordinates()
	assert.False(t, ok)
	_, _, ok = NewLocation(14.7, -17.45).Coordinates()
	assert.True(t, ok)
}
