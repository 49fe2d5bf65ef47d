// Package position provides position sources for headless fulfillers.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

const DefaultSpeedMps = 11.0 // ~40 km/h

// Replay moves along waypoints at a constant speed and samples the result.
// With no waypoints left it stays where it is.
type Replay struct {
	speedMps float64
	now      func() time.Time

	mu      sync.Mutex
	current models.Coordinates
	heading float64
	path    []models.Coordinates
}

func NewReplay(start models.Coordinates, speedMps float64) *Replay {
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	return &Replay{
		speedMps: speedMps,
		now:      time.Now,
		current:  start,
	}
}

// Follow replaces the remaining path with points, visited in order from the current position.
func (r *Replay) Follow(points ...models.Coordinates) {
	r.mu.Lock()
	r.path = append([]models.Coordinates(nil), points...)
	r.mu.Unlock()
}

// Position is the current sampled position.
func (r *Replay) Position() models.FulfillerPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.FulfillerPosition{Coordinates: r.current, Heading: r.heading, Timestamp: r.now()}
}

// Advance moves by meters along the path and reports whether the path is exhausted.
func (r *Replay) Advance(meters float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for meters > 0 && len(r.path) > 0 {
		next := r.path[0]
		left := geo.HaversineM(r.current, next)
		if left > 0 {
			r.heading = geo.BearingDegrees(r.current, next)
		}
		if left <= meters {
			r.current = next
			r.path = r.path[1:]
			meters -= left
			continue
		}
		r.current = geo.Interpolate(r.current, next, meters/left)
		meters = 0
	}
	return len(r.path) == 0
}

// Samples emits one position per interval until ctx is done.
func (r *Replay) Samples(ctx context.Context, interval time.Duration) <-chan models.PositionSample {
	out := make(chan models.PositionSample, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Advance(r.speedMps * interval.Seconds())
				select {
				case out <- models.PositionSample{Position: r.Position()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
