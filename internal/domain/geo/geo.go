// Package geo computes great-circle distances between venue and referee
// coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned for latitudes outside [-90,90] or
// longitudes outside [-180,180].
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the point's ranges.
func (p Point) Validate() error {
	switch {
	case math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0):
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrInvalidCoordinate, p.Lat, p.Lon)
	case p.Lat < -90 || p.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, p.Lat)
	case p.Lon < -180 || p.Lon > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h just past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h)), nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
