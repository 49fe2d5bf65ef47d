// Package trip is the coordinating side of the trip lifecycle: it owns canonical trip state,
// matches pending trips with nearby fulfillers and fans trip events out to participants.
package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/calculator"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
)

const (
	DefaultMatchTimeout   = 2 * time.Minute
	DefaultMatchInterval  = 5 * time.Second
	DefaultSearchRadiusKm = 5.0
	DefaultMaxCandidates  = 10

	DefaultRideOfferTimeout     = 15 * time.Second
	DefaultDeliveryOfferTimeout = 60 * time.Second

	geocodeTimeout = 3 * time.Second
)

type Config struct {
	MatchTimeout         time.Duration
	MatchInterval        time.Duration
	SearchRadiusKm       float64
	MaxCandidates        int
	RideOfferTimeout     time.Duration
	DeliveryOfferTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MatchTimeout <= 0 {
		c.MatchTimeout = DefaultMatchTimeout
	}
	if c.MatchInterval <= 0 {
		c.MatchInterval = DefaultMatchInterval
	}
	if c.SearchRadiusKm <= 0 {
		c.SearchRadiusKm = DefaultSearchRadiusKm
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
	if c.RideOfferTimeout <= 0 {
		c.RideOfferTimeout = DefaultRideOfferTimeout
	}
	if c.DeliveryOfferTimeout <= 0 {
		c.DeliveryOfferTimeout = DefaultDeliveryOfferTimeout
	}
	return c
}

func (c Config) offerTimeout(service types.ServiceType) time.Duration {
	if service == types.ServiceDelivery {
		return c.DeliveryOfferTimeout
	}
	return c.RideOfferTimeout
}

type Repos struct {
	Trips  TripRepo
	Events TripEventRepo
}

type Infra struct {
	Trm       TxManager
	Publisher Publisher
	Index     FulfillerIndex
	Sender    OfferSender
	// optional
	Geocoder Geocoder
}

type Service struct {
	repos Repos
	infra Infra
	calc  calculator.Calculator
	cfg   Config
	l     logger.Logger

	now func() time.Time

	mu      sync.Mutex
	matches map[uuid.UUID]*match
	wg      sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc
}

func NewService(repos Repos, infra Infra, calc calculator.Calculator, cfg Config, l logger.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repos:   repos,
		infra:   infra,
		calc:    calc,
		cfg:     cfg.withDefaults(),
		l:       l,
		now:     time.Now,
		matches: make(map[uuid.UUID]*match),
		baseCtx: ctx,
		stop:    cancel,
	}
}

// Close stops every running match and waits for them.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

// Create prices the trip, stores it and starts looking for a fulfiller.
func (s *Service) Create(ctx context.Context, actor *models.User, req models.CreateTripRequest) (*models.Trip, error) {
	const op = "TripService.Create"
	ctx = wrap.WithAction(ctx, "create_trip")

	switch actor.Role {
	case types.RoleRequester:
		req.RequesterID = actor.ID
	case types.RoleAdmin:
		if req.RequesterID == uuid.Nil {
			return nil, fmt.Errorf("%s: requester id is required: %w", op, types.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if req.ServiceType == "" {
		req.ServiceType = types.ServiceRide
	}

	s.fillAddress(ctx, &req.Pickup)
	s.fillAddress(ctx, &req.Dropoff)

	distance := s.calc.Distance(req.Pickup.Coordinates, req.Dropoff.Coordinates)
	duration := s.calc.Duration(req.ServiceType, distance)

	now := s.now()
	trip := &models.Trip{
		ID:          uuid.New(),
		ServiceType: req.ServiceType,
		Status:      types.StatusPending,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		Fare:        s.calc.Fare(req.ServiceType, distance, duration),
		DistanceKm:  distance,
		DurationMin: duration,
		RequesterID: req.RequesterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.RequirePIN {
		code, err := s.calc.SecurityCode()
		if err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: security code: %w", op, err))
		}
		trip.SecurityCode = &code
	}

	ctx = wrap.WithTripID(ctx, trip.ID.String())

	if err := s.infra.Trm.Do(ctx, func(ctx context.Context) error {
		if err := s.repos.Trips.Create(ctx, trip); err != nil {
			return fmt.Errorf("could not create trip in repo: %w", err)
		}
		return s.recordEvent(ctx, trip.ID, types.TripEventCreated, trip)
	}); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	metrics.RecordTripStatus(trip.ServiceType.String(), trip.Status.String())
	s.l.Info(ctx, "trip created", "service_type", trip.ServiceType.String(), "fare", trip.Fare)

	s.startMatching(trip)
	return trip, nil
}

// fillAddress is best effort, a place without an address is still a valid place.
func (s *Service) fillAddress(ctx context.Context, place *models.Place) {
	if s.infra.Geocoder == nil || place.Address != "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	addr, err := s.infra.Geocoder.ReverseGeocode(ctx, place.Coordinates)
	if err != nil {
		s.l.Debug(ctx, "reverse geocoding failed", "error", err.Error())
		return
	}
	place.Address = addr
}

// Get returns a trip to one of its participants.
func (s *Service) Get(ctx context.Context, actor *models.User, tripID uuid.UUID) (*models.Trip, error) {
	const op = "TripService.Get"

	trip, err := s.repos.Trips.Get(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.canSee(actor, trip) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	return trip, nil
}

// List returns the actor's trips, or every trip for an admin.
func (s *Service) List(ctx context.Context, actor *models.User, filter models.TripFilter) ([]models.Trip, models.Metadata, error) {
	userID := actor.ID
	if actor.Role == types.RoleAdmin {
		userID = uuid.Nil
	}

	trips, meta, err := s.repos.Trips.List(ctx, userID, filter)
	if err != nil {
		return nil, models.Metadata{}, fmt.Errorf("TripService.List: %w", err)
	}
	return trips, meta, nil
}

// History returns the recorded events of a trip to its participants.
func (s *Service) History(ctx context.Context, actor *models.User, tripID uuid.UUID) ([]models.TripEvent, error) {
	const op = "TripService.History"

	trip, err := s.repos.Trips.Get(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.isParticipant(actor, trip) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}

	events, err := s.repos.Events.History(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// Advance performs a fulfiller-driven step: arrived, in_progress or completed.
func (s *Service) Advance(ctx context.Context, actor *models.User, tripID uuid.UUID, target types.TripStatus) (*models.Trip, error) {
	const op = "TripService.Advance"
	ctx = wrap.WithTripID(wrap.WithAction(ctx, "advance_trip"), tripID.String())

	switch target {
	case types.StatusArrived, types.StatusInProgress, types.StatusCompleted:
	default:
		return nil, fmt.Errorf("%s: target %q: %w", op, target, types.ErrTransitionRejected)
	}

	trip, err := s.repos.Trips.Get(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if actor.Role != types.RoleFulfiller || trip.FulfillerID == nil || *trip.FulfillerID != actor.ID {
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if !tripfsm.CanAdvance(trip.Status, target) {
		return nil, fmt.Errorf("%s: %s -> %s: %w", op, trip.Status, target, types.ErrTransitionRejected)
	}

	var updated *models.Trip
	if err := s.infra.Trm.Do(ctx, func(ctx context.Context) error {
		updated, err = s.repos.Trips.UpdateStatus(ctx, tripID, trip.Status, target, s.now())
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tripID, types.TripEventStatusChanged, map[string]types.TripStatus{
			"from": trip.Status,
			"to":   target,
		})
	}); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.publish(ctx, types.EventTripStatus, tripID, nil, models.TripStatusPayload{
		TripID:      tripID,
		Status:      updated.Status,
		FulfillerID: updated.FulfillerID,
		Timestamp:   updated.UpdatedAt,
	})

	if target == types.StatusCompleted {
		s.releaseFulfiller(ctx, actor.ID)
	}

	metrics.RecordTripStatus(updated.ServiceType.String(), target.String())
	s.l.Info(ctx, "trip status changed", "from", trip.Status.String(), "to", target.String())
	return updated, nil
}

// Cancel is allowed for either participant until the trip is terminal.
// Confirmation of an in-progress cancel is the client's concern.
func (s *Service) Cancel(ctx context.Context, actor *models.User, tripID uuid.UUID, reason string) (*models.Trip, error) {
	const op = "TripService.Cancel"
	ctx = wrap.WithTripID(wrap.WithAction(ctx, "cancel_trip"), tripID.String())

	trip, err := s.repos.Trips.Get(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.isParticipant(actor, trip) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if err := tripfsm.CheckCancel(trip.Status, true); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, types.ErrTransitionRejected, err)
	}
	if reason == "" {
		reason = "cancelled by " + string(actor.Role)
	}

	var cancelled *models.Trip
	if err := s.infra.Trm.Do(ctx, func(ctx context.Context) error {
		cancelled, err = s.repos.Trips.Cancel(ctx, tripID, reason, s.now())
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tripID, types.TripEventCancelled, map[string]string{
			"reason":       reason,
			"cancelled_by": actor.Role.String(),
		})
	}); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.stopMatching(ctx, tripID)

	s.publish(ctx, types.EventTripCancelled, tripID, nil, models.TripCancelledPayload{
		TripID:      tripID,
		Reason:      reason,
		CancelledBy: actor.Role,
		Timestamp:   cancelled.UpdatedAt,
	})

	if cancelled.FulfillerID != nil {
		s.releaseFulfiller(ctx, *cancelled.FulfillerID)
	}

	metrics.RecordTripStatus(cancelled.ServiceType.String(), cancelled.Status.String())
	s.l.Info(ctx, "trip cancelled", "reason", reason)
	return cancelled, nil
}

// AcceptOffer assigns the fulfiller if the trip is still unclaimed.
func (s *Service) AcceptOffer(ctx context.Context, actor *models.User, tripID uuid.UUID) (*models.Trip, error) {
	const op = "TripService.AcceptOffer"
	ctx = wrap.WithTripID(wrap.WithAction(ctx, "accept_offer"), tripID.String())
	ctx = wrap.WithFulfillerID(ctx, actor.ID.String())

	if actor.Role != types.RoleFulfiller {
		return nil, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	// an offer held by someone else, or already expired, cannot be claimed here
	if m := s.getMatch(tripID); m != nil && !m.offeredTo(actor.ID, s.now()) {
		return nil, fmt.Errorf("%s: %w", op, types.ErrOfferConflict)
	}

	var trip *models.Trip
	err := s.infra.Trm.Do(ctx, func(ctx context.Context) error {
		var err error
		trip, err = s.repos.Trips.AssignFulfiller(ctx, tripID, actor.ID, s.now())
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tripID, types.TripEventAccepted, map[string]string{
			"fulfiller_id": actor.ID.String(),
		})
	})
	if err != nil {
		if !errors.Is(err, types.ErrOfferConflict) {
			err = wrap.Error(ctx, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.infra.Index.SetStatus(ctx, actor.ID, types.FulfillerBusy); err != nil {
		s.l.Warn(ctx, "failed to mark fulfiller busy", "error", err.Error())
	}

	s.decide(tripID, models.OfferDecision{TripID: tripID, FulfillerID: actor.ID, Accepted: true})

	s.publish(ctx, types.EventTripAccepted, tripID, nil, models.TripAcceptedPayload{
		TripID:      tripID,
		FulfillerID: actor.ID,
		Trip:        trip,
	})

	metrics.RecordOffer("accepted")
	metrics.RecordTripStatus(trip.ServiceType.String(), trip.Status.String())
	s.l.Info(ctx, "offer accepted")
	return trip, nil
}

// RejectOffer is idempotent: rejecting an offer that already expired or moved on is not an error.
func (s *Service) RejectOffer(ctx context.Context, actor *models.User, tripID uuid.UUID, reason string) error {
	ctx = wrap.WithTripID(wrap.WithAction(ctx, "reject_offer"), tripID.String())
	ctx = wrap.WithFulfillerID(ctx, actor.ID.String())

	if actor.Role != types.RoleFulfiller {
		return fmt.Errorf("TripService.RejectOffer: %w", types.ErrForbidden)
	}
	if reason == "" {
		reason = "unavailable"
	}

	if !s.decide(tripID, models.OfferDecision{TripID: tripID, FulfillerID: actor.ID, Reason: reason}) {
		s.l.Debug(ctx, "reject for an offer that is no longer active")
		return nil
	}

	if err := s.recordEvent(ctx, tripID, types.TripEventOfferRejected, map[string]string{
		"fulfiller_id": actor.ID.String(),
		"reason":       reason,
	}); err != nil {
		s.l.Warn(ctx, "failed to record offer rejection", "error", err.Error())
	}

	metrics.RecordOffer("rejected")
	s.l.Info(ctx, "offer rejected", "reason", reason)
	return nil
}

func (s *Service) canSee(actor *models.User, trip *models.Trip) bool {
	if s.isParticipant(actor, trip) {
		return true
	}
	// the fulfiller currently holding the offer may look at the trip
	m := s.getMatch(trip.ID)
	return m != nil && m.offeredTo(actor.ID, s.now())
}

func (s *Service) isParticipant(actor *models.User, trip *models.Trip) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleRequester:
		return trip.RequesterID == actor.ID
	case types.RoleFulfiller:
		return trip.FulfillerID != nil && *trip.FulfillerID == actor.ID
	}
	return false
}

func (s *Service) releaseFulfiller(ctx context.Context, fulfillerID uuid.UUID) {
	if err := s.infra.Index.SetStatus(ctx, fulfillerID, types.FulfillerAvailable); err != nil {
		s.l.Warn(ctx, "failed to release fulfiller", "fulfiller_id", fulfillerID.String(), "error", err.Error())
	}
}

func (s *Service) recordEvent(ctx context.Context, tripID uuid.UUID, eventType types.TripEventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := s.repos.Events.CreateEvent(ctx, tripID, eventType, raw); err != nil {
		return fmt.Errorf("failed to create %s event: %w", eventType, err)
	}
	return nil
}

// publish sends a trip event to the bus. Failures are logged:
// clients converge through polling.
func (s *Service) publish(ctx context.Context, event types.ChannelEvent, tripID uuid.UUID, recipient *uuid.UUID, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.l.Error(ctx, "failed to marshal trip event", err, "event", event.String())
		return
	}

	msg := models.TripEventMessage{
		Event:         event,
		TripID:        tripID,
		RecipientID:   recipient,
		Payload:       raw,
		Timestamp:     s.now(),
		CorrelationID: wrap.GetRequestID(ctx),
	}
	if err := s.infra.Publisher.PublishTripEvent(ctx, msg); err != nil {
		s.l.Error(wrap.ErrorCtx(ctx, err), "failed to publish trip event", types.ErrFailedToPublishTripEvent,
			"event", event.String(), "error", err.Error())
	}
}
