// Package directions turns two coordinates into a LiveRoute and guards
// per-trip route fetching.
package directions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/twpayne/go-polyline"
	"golang.org/x/sync/singleflight"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const StatusOK = "OK"

type Resolver struct {
	provider  Provider
	tolerance float64
	logger    logger.Logger

	group singleflight.Group

	mu      sync.Mutex
	latches map[uuid.UUID]*latch
}

// latch remembers that a route for the leg was already fetched.
type latch struct {
	leg     tripfsm.Leg
	fetched bool
	// true once a fetch used the fulfiller's real position as origin
	realOrigin bool
}

func NewResolver(provider Provider, tolerance float64, logger logger.Logger) *Resolver {
	if tolerance <= 0 {
		tolerance = geo.DefaultSimplifyTolerance
	}
	return &Resolver{
		provider:  provider,
		tolerance: tolerance,
		logger:    logger,
		latches:   make(map[uuid.UUID]*latch),
	}
}

// Resolve asks the provider for a route and converts it.
// Any transport failure or non-OK status is types.ErrRouteUnavailable.
func (r *Resolver) Resolve(ctx context.Context, origin, destination models.Coordinates) (models.LiveRoute, error) {
	const op = "Resolver.Resolve"

	res, err := r.provider.Route(ctx, origin, destination)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.LiveRoute{}, wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrRouteUnavailable, err))
	}

	if res.Status != StatusOK {
		return models.LiveRoute{}, wrap.Error(ctx, fmt.Errorf("%s: %w: provider status %s %s", op, types.ErrRouteUnavailable, res.Status, res.ErrorMessage))
	}

	return r.convert(ctx, res)
}

func (r *Resolver) convert(ctx context.Context, res models.DirectionsResult) (models.LiveRoute, error) {
	const op = "Resolver.convert"

	coords, _, err := polyline.DecodeCoords([]byte(res.EncodedPolyline))
	if err != nil {
		return models.LiveRoute{}, wrap.Error(ctx, fmt.Errorf("%s: %w: decode polyline: %w", op, types.ErrRouteUnavailable, err))
	}

	points := make([]models.Coordinates, 0, len(coords))
	for _, c := range coords {
		points = append(points, models.Coordinates{Lat: c[0], Lng: c[1]})
	}

	route := models.LiveRoute{
		Polyline: geo.SimplifyRoute(points, r.tolerance),
	}

	for _, leg := range res.Legs {
		route.TotalDistanceM += leg.DistanceM
		route.TotalDurationS += leg.DurationS

		for _, s := range leg.Steps {
			route.Steps = append(route.Steps, models.Step{
				Instruction: StripHTML(s.HTMLInstruction),
				DistanceM:   s.DistanceM,
				DurationS:   s.DurationS,
				Maneuver:    s.Maneuver,
				Start:       s.Start,
				End:         s.End,
			})
		}
	}

	return route, nil
}

// Ensure fetches the route for the trip's active leg unless it was already fetched.
//
// origin is the fulfiller position, nil while unknown; fallbackOrigin is used instead.
// When a route was fetched from the fallback, one more fetch happens as soon as
// origin becomes known. Failed fetches leave the latch open so the next tick retries.
// fetched is false when nothing had to be done.
func (r *Resolver) Ensure(ctx context.Context, tripID uuid.UUID, leg tripfsm.Leg, origin *models.Coordinates, fallbackOrigin, destination models.Coordinates) (route models.LiveRoute, fetched bool, err error) {
	const op = "Resolver.Ensure"

	if leg == tripfsm.LegNone {
		return models.LiveRoute{}, false, nil
	}

	from := fallbackOrigin
	if origin != nil {
		from = *origin
	}
	if from.IsZero() {
		return models.LiveRoute{}, false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, types.ErrPositionUnavailable))
	}

	r.mu.Lock()
	l, ok := r.latches[tripID]
	if !ok || l.leg != leg {
		l = &latch{leg: leg}
		r.latches[tripID] = l
	}
	need := !l.fetched || (origin != nil && !l.realOrigin)
	r.mu.Unlock()

	if !need {
		return models.LiveRoute{}, false, nil
	}

	v, err, _ := r.group.Do(flightKey(tripID, leg, origin != nil), func() (any, error) {
		return r.Resolve(ctx, from, destination)
	})
	if err != nil {
		return models.LiveRoute{}, false, err
	}
	route = v.(models.LiveRoute)

	r.mu.Lock()
	// leg may have changed while we were fetching
	if r.latches[tripID] == l {
		l.fetched = true
		l.realOrigin = l.realOrigin || origin != nil
	}
	r.mu.Unlock()

	r.logger.Debug(ctx, "route resolved", "leg", leg.String(), "steps", len(route.Steps), "from_position", origin != nil)

	return route, true, nil
}

func flightKey(tripID uuid.UUID, leg tripfsm.Leg, realOrigin bool) string {
	return fmt.Sprintf("%s:%s:%t", tripID, leg, realOrigin)
}

// Fetched reports whether the route for leg is latched.
func (r *Resolver) Fetched(tripID uuid.UUID, leg tripfsm.Leg) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.latches[tripID]
	return ok && l.leg == leg && l.fetched
}

// Reset clears the latch, used when the active leg changes.
func (r *Resolver) Reset(tripID uuid.UUID) {
	r.mu.Lock()
	delete(r.latches, tripID)
	r.mu.Unlock()
}

// Forget drops everything known about the trip at session end.
func (r *Resolver) Forget(tripID uuid.UUID) {
	r.Reset(tripID)
	for _, leg := range []tripfsm.Leg{tripfsm.LegPickup, tripfsm.LegDropoff} {
		r.group.Forget(flightKey(tripID, leg, false))
		r.group.Forget(flightKey(tripID, leg, true))
	}
}
