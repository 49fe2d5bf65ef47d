package geo

import "math"

// SimplifyRoute reduces points with the Douglas–Peucker algorithm.
// Distances are planar, in degrees, so tolerance is in degrees too.
// Routes of two points or fewer are returned unchanged.
func SimplifyRoute(points []Coordinates, tolerance float64) []Coordinates {
	if len(points) <= 2 {
		return points
	}

	first, last := points[0], points[len(points)-1]

	maxDist, index := 0.0, 0
	for i := 1; i < len(points)-1; i++ {
		if d := perpendicularDistance(points[i], first, last); d > maxDist {
			maxDist, index = d, i
		}
	}

	if maxDist <= tolerance {
		return []Coordinates{first, last}
	}

	left := SimplifyRoute(points[:index+1], tolerance)
	right := SimplifyRoute(points[index:], tolerance)

	// left and right share points[index], keep it once.
	// New slice: sub-results may alias the input.
	out := make([]Coordinates, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	return append(out, right...)
}

// perpendicularDistance from p to the line through a and b, in degrees.
func perpendicularDistance(p, a, b Coordinates) float64 {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat

	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lng-a.Lng, p.Lat-a.Lat)
	}

	cross := dx*(a.Lat-p.Lat) - dy*(a.Lng-p.Lng)
	return math.Abs(cross) / math.Hypot(dx, dy)
}
