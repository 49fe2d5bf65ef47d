package position

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

func TestAdvanceReachesWaypoints(t *testing.T) {
	start := models.Coordinates{Lat: 43.2389, Lng: 76.8897}
	a := models.Coordinates{Lat: 43.2400, Lng: 76.8897}
	b := models.Coordinates{Lat: 43.2400, Lng: 76.8920}

	r := NewReplay(start, 10)
	r.Follow(a, b)

	first := geo.HaversineM(start, a)
	if done := r.Advance(first / 2); done {
		t.Fatalf("path should not be exhausted halfway")
	}
	halfway := r.Position().Coordinates
	if d := geo.HaversineM(halfway, a); math.Abs(d-first/2) > 1 {
		t.Fatalf("expected ~%.1fm to a, got %.1fm", first/2, d)
	}
	if h := r.Position().Heading; h > 1 && h < 359 {
		t.Fatalf("expected heading north, got %.1f", h)
	}

	if done := r.Advance(first/2 + 1); done {
		t.Fatalf("b is still ahead")
	}
	if h := r.Position().Heading; math.Abs(h-90) > 2 {
		t.Fatalf("expected heading east after a, got %.1f", h)
	}

	if done := r.Advance(10_000); !done {
		t.Fatalf("expected path exhausted")
	}
	if r.Position().Coordinates != b {
		t.Fatalf("expected to stop at b, got %+v", r.Position().Coordinates)
	}
}

func TestStaysWithoutPath(t *testing.T) {
	start := models.Coordinates{Lat: 1, Lng: 2}
	r := NewReplay(start, 0)

	if !r.Advance(100) {
		t.Fatalf("empty path is exhausted")
	}
	if r.Position().Coordinates != start {
		t.Fatalf("moved without a path")
	}
}

func TestSamplesStopWithContext(t *testing.T) {
	r := NewReplay(models.Coordinates{Lat: 1, Lng: 2}, 5)
	ctx, cancel := context.WithCancel(context.Background())

	samples := r.Samples(ctx, 5*time.Millisecond)
	select {
	case s := <-samples:
		if s.Err != nil {
			t.Fatalf("unexpected sample error %v", s.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no sample")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-samples:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed after cancel")
		}
	}
}
