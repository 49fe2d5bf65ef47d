// Package geo contains pure geographic helpers used by trip tracking:
// great-circle distance, arrival radius checks and route simplification.
package geo

import (
	"math"
)

const (
	EarthRadiusKm = 6371.0
	EarthRadiusM  = EarthRadiusKm * 1000

	// DefaultArrivalRadiusM is the distance under which a fulfiller is at a waypoint.
	DefaultArrivalRadiusM = 50.0
	// DefaultSimplifyTolerance is expressed in degrees.
	DefaultSimplifyTolerance = 0.0001
)

// Coordinates is a WGS-84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether c is the zero point (used as "unknown").
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func radiansToDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// HaversineKm calculates the great-circle distance between two points in kilometers.
func HaversineKm(a, b Coordinates) float64 {
	lat1Rad := degreesToRadians(a.Lat)
	lat2Rad := degreesToRadians(b.Lat)

	deltaLat := lat2Rad - lat1Rad
	deltaLon := degreesToRadians(b.Lng - a.Lng)

	h := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Pow(math.Sin(deltaLon/2), 2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// HaversineM is HaversineKm in meters.
func HaversineM(a, b Coordinates) float64 {
	return HaversineKm(a, b) * 1000
}

// WithinRadius reports whether point lies within meters of center.
func WithinRadius(point, center Coordinates, meters float64) bool {
	return HaversineM(point, center) <= meters
}

// BearingDegrees returns the initial bearing from a to b in [0, 360).
func BearingDegrees(a, b Coordinates) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLon := degreesToRadians(b.Lng - a.Lng)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(radiansToDegrees(math.Atan2(y, x))+360, 360)
}

// RouteLengthKm sums the haversine length of consecutive points.
func RouteLengthKm(points []Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1], points[i])
	}
	return total
}

// Interpolate returns the point at fraction f (0..1) of the segment a→b.
// Linear in degrees, good enough for the short hops between polyline points.
func Interpolate(a, b Coordinates, f float64) Coordinates {
	f = math.Max(0, math.Min(1, f))
	return Coordinates{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}
