package geo

import (
	"math"
	"reflect"
	"testing"
)

func TestSimplifyRoute_ShortRoutesUnchanged(t *testing.T) {
	for _, pts := range [][]Coordinates{
		nil,
		{{14.7, -17.45}},
		{{14.7, -17.45}, {14.73, -17.47}},
	} {
		got := SimplifyRoute(pts, DefaultSimplifyTolerance)
		if !reflect.DeepEqual(got, pts) {
			t.Fatalf("SimplifyRoute(%v) = %v, want unchanged", pts, got)
		}
	}
}

func TestSimplifyRoute_ColinearCollapses(t *testing.T) {
	for _, n := range []int{3, 4, 10, 100} {
		pts := make([]Coordinates, n)
		for i := range pts {
			f := float64(i) / float64(n-1)
			pts[i] = Coordinates{Lat: 14.70 + 0.03*f, Lng: -17.45 - 0.02*f}
		}

		for _, tol := range []float64{1e-12, 1e-6, DefaultSimplifyTolerance, 1} {
			got := SimplifyRoute(pts, tol)
			want := []Coordinates{pts[0], pts[n-1]}
			if len(got) != 2 || !closeTo(got[0], want[0]) || !closeTo(got[1], want[1]) {
				t.Fatalf("n=%d tol=%g: got %v, want endpoints %v", n, tol, got, want)
			}
		}
	}
}

func TestSimplifyRoute_KeepsCorner(t *testing.T) {
	pts := []Coordinates{
		{0, 0}, {0, 0.5}, {0, 1}, // east
		{0.5, 1}, {1, 1}, // north
	}

	got := SimplifyRoute(pts, DefaultSimplifyTolerance)
	want := []Coordinates{{0, 0}, {0, 1}, {1, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSimplifyRoute_FixedPoint(t *testing.T) {
	pts := zigzag(200)

	for _, tol := range []float64{0.00001, DefaultSimplifyTolerance, 0.001} {
		once := SimplifyRoute(pts, tol)
		twice := SimplifyRoute(once, tol)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("tol=%g: simplify is not idempotent: %d -> %d points", tol, len(once), len(twice))
		}
		if once[0] != pts[0] || once[len(once)-1] != pts[len(pts)-1] {
			t.Fatalf("endpoints must be kept")
		}
	}
}

func TestSimplifyRoute_DoesNotMutateInput(t *testing.T) {
	pts := zigzag(50)
	orig := append([]Coordinates(nil), pts...)

	_ = SimplifyRoute(pts, DefaultSimplifyTolerance)

	if !reflect.DeepEqual(pts, orig) {
		t.Fatalf("input slice was modified")
	}
}

func zigzag(n int) []Coordinates {
	pts := make([]Coordinates, n)
	for i := range pts {
		pts[i] = Coordinates{
			Lat: 14.70 + float64(i)*0.0002,
			Lng: -17.45 + 0.0003*math.Sin(float64(i)*0.7),
		}
	}
	return pts
}

func closeTo(a, b Coordinates) bool {
	return math.Abs(a.Lat-b.Lat) < 1e-12 && math.Abs(a.Lng-b.Lng) < 1e-12
}

func BenchmarkSimplifyRoute(b *testing.B) {
	pts := zigzag(2000)

	for b.Loop() {
		_ = SimplifyRoute(pts, DefaultSimplifyTolerance)
	}
}
