// Package session runs one active trip on a client: it owns the trip state and serializes
// the channel, the polling fallback and the position sampler into one reducer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const (
	DefaultPendingPollInterval  = 6 * time.Second
	DefaultAttachedPollInterval = 10 * time.Second
	DefaultPositionInterval     = 3 * time.Second
	DefaultNearStepM            = 50.0

	updatesBuffer = 16
	readTimeout   = 10 * time.Second
)

var ErrSessionStarted = errors.New("session already started")

type Config struct {
	Role types.UserRole

	ArrivalRadiusM float64
	NearStepM      float64

	PendingPollInterval  time.Duration
	AttachedPollInterval time.Duration
	PositionInterval     time.Duration
}

func (c *Config) setDefaults() {
	if c.ArrivalRadiusM <= 0 {
		c.ArrivalRadiusM = geo.DefaultArrivalRadiusM
	}
	if c.NearStepM <= 0 {
		c.NearStepM = DefaultNearStepM
	}
	if c.PendingPollInterval <= 0 {
		c.PendingPollInterval = DefaultPendingPollInterval
	}
	if c.AttachedPollInterval <= 0 {
		c.AttachedPollInterval = DefaultAttachedPollInterval
	}
	if c.PositionInterval <= 0 {
		c.PositionInterval = DefaultPositionInterval
	}
}

// Deps are the collaborators of a session. Positions and Announcer are optional.
type Deps struct {
	API       TripAPI
	Channel   Channel
	Routes    RouteResolver
	Positions PositionSource
	Announcer Announcer
	Logger    logger.Logger
}

type Controller struct {
	api       TripAPI
	channel   Channel
	routes    RouteResolver
	positions PositionSource
	announcer Announcer
	logger    logger.Logger
	cfg       Config

	mu      sync.Mutex
	trip    models.Trip
	state   tripfsm.TripState
	updates chan tripfsm.View
	stopped bool
	closing bool

	// the current route was resolved from the fulfiller's real position
	routedFromPosition bool

	statusHooks []func(types.TripStatus)
	chatHook    func(models.ChatMessagePayload)

	routing  atomic.Bool
	rerun    atomic.Bool
	wakePoll chan struct{}

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	offs    []func()
}

func New(deps Deps, cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{
		api:       deps.API,
		channel:   deps.Channel,
		routes:    deps.Routes,
		positions: deps.Positions,
		announcer: deps.Announcer,
		logger:    deps.Logger,
		cfg:       cfg,
		updates:   make(chan tripfsm.View, updatesBuffer),
		wakePoll:  make(chan struct{}, 1),
	}
}

// OnStatus registers a hook called after every applied status change.
// Must be called before Start.
func (c *Controller) OnStatus(fn func(types.TripStatus)) {
	c.mu.Lock()
	c.statusHooks = append(c.statusHooks, fn)
	c.mu.Unlock()
}

// OnChat receives chat messages passed through the channel.
func (c *Controller) OnChat(fn func(models.ChatMessagePayload)) {
	c.mu.Lock()
	c.chatHook = fn
	c.mu.Unlock()
}

// Start begins tracking trip. The controller keeps its own copy of the trip.
func (c *Controller) Start(ctx context.Context, trip *models.Trip) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}

	ctx = wrap.WithTripID(ctx, trip.ID.String())
	ctx, c.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	c.trip = *trip
	c.state = tripfsm.TripState{
		TripID:         trip.ID,
		Role:           c.cfg.Role,
		Status:         trip.Status,
		Pickup:         trip.Pickup.Coordinates,
		Dropoff:        trip.Dropoff.Coordinates,
		ArrivalRadiusM: c.cfg.ArrivalRadiusM,
	}
	c.publishLocked()
	c.mu.Unlock()

	c.subscribe(ctx)

	if c.channel.Connected() {
		c.joinRoom(ctx)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	if c.positions != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.sampleLoop(ctx)
		}()
	}

	c.logger.Info(ctx, "trip session started", "status", trip.Status.String(), "role", c.cfg.Role.String())
	c.resolveRoute(ctx)
	return nil
}

// Stop ends the session. The channel itself stays open, its owner closes it.
func (c *Controller) Stop(ctx context.Context) {
	if !c.started.Load() || c.cancel == nil {
		return
	}

	// no new background work is added once closing is set
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	offs := c.offs
	c.offs = nil
	tripID := c.trip.ID
	wasStopped := c.stopped
	c.stopped = true
	if !wasStopped {
		close(c.updates)
	}
	c.mu.Unlock()

	if wasStopped {
		return
	}

	for _, off := range offs {
		off()
	}

	ctx = wrap.WithTripID(ctx, tripID.String())
	if c.channel.Connected() {
		if err := c.channel.Emit(ctx, types.EventLeaveTripRoom, tripID.String(), models.JoinRoomPayload{TripID: tripID}); err != nil {
			c.logger.Debug(ctx, "leave room failed", "error", err.Error())
		}
	}
	c.routes.Forget(tripID)
	c.logger.Info(ctx, "trip session stopped")
}

// View returns the current derived view.
func (c *Controller) View() tripfsm.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tripfsm.Derive(c.state)
}

// Updates delivers a view after every applied change. Slow readers miss intermediate views.
func (c *Controller) Updates() <-chan tripfsm.View {
	return c.updates
}

// Trip returns a copy of the tracked trip.
func (c *Controller) Trip() models.Trip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trip
}

// publishLocked must be called with mu held, so views leave in the order they were applied.
func (c *Controller) publishLocked() {
	if c.stopped {
		return
	}
	v := tripfsm.Derive(c.state)
	select {
	case c.updates <- v:
	default:
		// drop the oldest view
		select {
		case <-c.updates:
		default:
		}
		select {
		case c.updates <- v:
		default:
		}
	}
}

type statusUpdate struct {
	status      types.TripStatus
	fulfillerID *uuid.UUID
	reason      *string
}

// applyStatus is the single reducer for status candidates from every producer.
func (c *Controller) applyStatus(ctx context.Context, u statusUpdate, source string) bool {
	c.mu.Lock()
	prev := c.state.Status
	next, changed := tripfsm.Reconcile(prev, u.status)
	if !changed {
		c.mu.Unlock()
		if u.status != prev {
			c.logger.Debug(ctx, "stale status discarded", "current", prev.String(), "candidate", u.status.String(), "source", source)
		}
		return false
	}

	c.state.Status = next
	c.trip.Status = next
	c.trip.UpdatedAt = time.Now()
	if u.fulfillerID != nil && !c.trip.HasFulfiller() {
		id := *u.fulfillerID
		c.trip.FulfillerID = &id
	}
	if u.reason != nil {
		c.trip.CancellationReason = u.reason
	}

	legChanged := tripfsm.ActiveLeg(prev) != tripfsm.ActiveLeg(next)
	if legChanged {
		c.state.Route = nil
		c.state.StepIndex = 0
		c.state.RouteUnavailable = false
		c.routedFromPosition = false
		c.routes.Reset(c.trip.ID)
	}
	hooks := c.statusHooks
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info(ctx, "trip status changed", "from", prev.String(), "to", next.String(), "source", source)

	for _, hook := range hooks {
		hook(next)
	}

	if next.IsTerminal() {
		c.routes.Forget(c.trip.ID)
		return true
	}
	if legChanged {
		c.resolveRoute(ctx)
	}
	return true
}

// applyTrip reconciles a canonical trip fetched from the server.
func (c *Controller) applyTrip(ctx context.Context, trip *models.Trip, source string) {
	if trip == nil || trip.ID != c.tripID() {
		return
	}
	c.applyStatus(ctx, statusUpdate{
		status:      trip.Status,
		fulfillerID: trip.FulfillerID,
		reason:      trip.CancellationReason,
	}, source)
}

// applyPosition keeps the newest position and advances the current step.
func (c *Controller) applyPosition(ctx context.Context, pos models.FulfillerPosition) {
	c.mu.Lock()
	if c.state.Position != nil && !pos.NewerThan(*c.state.Position) {
		c.mu.Unlock()
		return
	}

	p := pos
	c.state.Position = &p
	c.state.PositionUnknown = false

	var announce *models.Step
	if r := c.state.Route; r != nil && c.state.StepIndex < len(r.Steps) {
		step := r.Steps[c.state.StepIndex]
		if geo.WithinRadius(pos.Coordinates, step.End, c.cfg.NearStepM) {
			c.state.StepIndex++
			if c.state.StepIndex < len(r.Steps) {
				next := r.Steps[c.state.StepIndex]
				announce = &next
			}
		}
	}

	// a route drawn from the fallback origin is fetched once more from the first real position
	needRoute := tripfsm.ActiveLeg(c.state.Status) != tripfsm.LegNone && (c.state.Route == nil || !c.routedFromPosition)
	c.publishLocked()
	c.mu.Unlock()

	if announce != nil && c.announcer != nil {
		c.announcer.Announce(ctx, *announce)
	}
	if needRoute {
		c.resolveRoute(ctx)
	}
}

func (c *Controller) markPositionUnknown(ctx context.Context, err error) {
	c.mu.Lock()
	already := c.state.PositionUnknown
	c.state.PositionUnknown = true
	if !already {
		c.publishLocked()
	}
	c.mu.Unlock()

	if !already {
		c.logger.Warn(ctx, "position unknown, keeping last known", "error", err.Error())
	}
}

// resolveRoute fetches the active leg's route in the background.
// Only one fetch runs at a time. A request made during a fetch runs again
// with fresh state once that fetch is done.
func (c *Controller) resolveRoute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	for !c.routing.CompareAndSwap(false, true) {
		c.rerun.Store(true)
		if c.routing.Load() {
			// the running fetch picks the request up
			return
		}
	}

	c.mu.Lock()
	leg := tripfsm.ActiveLeg(c.state.Status)
	if leg == tripfsm.LegNone || c.closing {
		c.mu.Unlock()
		c.routing.Store(false)
		return
	}
	tripID := c.trip.ID
	var origin *models.Coordinates
	if c.state.Position != nil {
		o := c.state.Position.Coordinates
		origin = &o
	}
	var fallback, destination models.Coordinates
	switch leg {
	case tripfsm.LegPickup:
		destination = c.state.Pickup
	case tripfsm.LegDropoff:
		fallback = c.state.Pickup
		destination = c.state.Dropoff
	}
	// Add under mu: Stop sets closing under mu before it waits
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		route, fetched, err := c.routes.Ensure(ctx, tripID, leg, origin, fallback, destination)
		c.applyRoute(ctx, leg, origin != nil, route, fetched, err)

		c.routing.Store(false)
		if c.rerun.Swap(false) {
			c.resolveRoute(ctx)
		}
	}()
}

func (c *Controller) applyRoute(ctx context.Context, leg tripfsm.Leg, fromPosition bool, route models.LiveRoute, fetched bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tripfsm.ActiveLeg(c.state.Status) != leg {
		return
	}

	switch {
	case errors.Is(err, types.ErrPositionUnavailable):
		// nothing to route from yet
	case err != nil:
		if !c.state.RouteUnavailable {
			c.state.RouteUnavailable = true
			c.publishLocked()
		}
		c.logger.Debug(ctx, "route unavailable, will retry", "leg", leg.String(), "error", err.Error())
	case fetched:
		c.state.Route = &route
		c.state.StepIndex = 0
		c.state.RouteUnavailable = false
		c.routedFromPosition = fromPosition
		c.publishLocked()
	default:
		// latched already, nothing new to draw
		if fromPosition && c.state.Route != nil {
			c.routedFromPosition = true
		}
	}
}

func (c *Controller) tripID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trip.ID
}

func (c *Controller) status() types.TripStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

// refresh fetches the canonical trip and reconciles it. Errors are swallowed.
func (c *Controller) refresh(ctx context.Context, source string) {
	const op = "Controller.refresh"

	rctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	trip, err := c.api.GetTrip(rctx, c.tripID())
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug(ctx, "trip poll failed", "source", source, "error", fmt.Errorf("%s: %w", op, err).Error())
		}
		return
	}
	c.applyTrip(ctx, trip, source)
}
