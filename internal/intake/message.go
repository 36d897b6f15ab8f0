package intake

import (
	"math"
	"strconv"
	"strings"
)

// Inbound is one normalized event from a transport.
type Inbound struct {
	// Identity is the conversation key, e.g. "telegram:42" or "whatsapp:221770000000".
	Identity     string
	ReporterName string
	Channel      string
	Payload      Payload
}

// Payload is the closed set of inputs the engine understands.
type Payload interface {
	isPayload()
}

type Text struct {
	Value string
}

type Photo struct {
	Ref string
}

// Location carries pointers so a transport can pass on a coordinate pair
// with a value missing; the engine rejects it.
type Location struct {
	Latitude  *float64
	Longitude *float64
}

type Button struct {
	ID string
}

func (Text) isPayload()     {}
func (Photo) isPayload()    {}
func (Location) isPayload() {}
func (Button) isPayload()   {}

// NewLocation builds a complete Location.
func NewLocation(lat, lon float64) Location {
	return Location{Latitude: &lat, Longitude: &lon}
}

// Coordinates returns the pair if both values are present, finite and in range.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *l.Latitude, *l.Longitude
	if !validCoordinate(lat, 90) || !validCoordinate(lon, 180) {
		return 0, 0, false
	}
	return lat, lon, true
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// ParseCoordinates reads a typed "lat, lon" (or "lat lon", or "lat;lon") pair.
func ParseCoordinates(s string) (Location, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return Location{}, false
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Location{}, false
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Location{}, false
	}
	loc := NewLocation(lat, lon)
	if _, _, ok := loc.Coordinates(); !ok {
		return Location{}, false
	}
	return loc, true
}
