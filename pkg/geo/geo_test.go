package geo

import (
	"math"
	"testing"
)

// one meter of latitude in degrees
const degPerMeter = 1 / (EarthRadiusM * math.Pi / 180)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name string
		a, b Coordinates
		want float64
	}{
		{"same point", Coordinates{14.70, -17.45}, Coordinates{14.70, -17.45}, 0},
		{"one degree of longitude at equator", Coordinates{0, 0}, Coordinates{0, 1}, 111.19492664455873},
		{"dakar trip", Coordinates{14.70, -17.45}, Coordinates{14.73, -17.47}, 3.9691937047987538},
		{"london to new york", Coordinates{51.5007, -0.1246}, Coordinates{40.6892, -74.0445}, 5574.840456848554},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("HaversineKm = %.12f, want %.12f", got, tt.want)
			}
			if back := HaversineKm(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Fatalf("distance must be symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestWithinRadius(t *testing.T) {
	center := Coordinates{14.7005, -17.4507}

	if !WithinRadius(center, center, DefaultArrivalRadiusM) {
		t.Fatalf("center must be within its own radius")
	}

	far := Coordinates{center.Lat + 1000*degPerMeter, center.Lng}
	if WithinRadius(far, center, DefaultArrivalRadiusM) {
		t.Fatalf("point 1000 m away must not be within 50 m")
	}

	inside := Coordinates{center.Lat + 49*degPerMeter, center.Lng}
	outside := Coordinates{center.Lat + 51*degPerMeter, center.Lng}
	if !WithinRadius(inside, center, 50) {
		t.Fatalf("49 m must be inside (haversine %.3f m)", HaversineM(inside, center))
	}
	if WithinRadius(outside, center, 50) {
		t.Fatalf("51 m must be outside (haversine %.3f m)", HaversineM(outside, center))
	}
}

func TestWithinRadius_ConsistentWithHaversine(t *testing.T) {
	center := Coordinates{14.7005, -17.4507}
	for _, p := range []Coordinates{{14.700, -17.450}, {14.7003, -17.4505}, {14.7006, -17.4508}} {
		want := HaversineM(p, center) <= 50
		if got := WithinRadius(p, center, 50); got != want {
			t.Fatalf("WithinRadius(%v) = %v, haversine says %v", p, got, want)
		}
	}
}

func TestBearingDegrees(t *testing.T) {
	north := BearingDegrees(Coordinates{0, 0}, Coordinates{1, 0})
	east := BearingDegrees(Coordinates{0, 0}, Coordinates{0, 1})

	if math.Abs(north) > 1e-9 {
		t.Fatalf("north bearing = %v", north)
	}
	if math.Abs(east-90) > 1e-9 {
		t.Fatalf("east bearing = %v", east)
	}
}

func TestInterpolate_Clamps(t *testing.T) {
	a, b := Coordinates{0, 0}, Coordinates{1, 2}
	if got := Interpolate(a, b, 0.5); got != (Coordinates{0.5, 1}) {
		t.Fatalf("midpoint = %v", got)
	}
	if got := Interpolate(a, b, 3); got != b {
		t.Fatalf("fraction above 1 must clamp, got %v", got)
	}
}
