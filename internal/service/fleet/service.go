// Package fleet manages fulfiller availability and routes their live positions
// to the geo index and to the trip they are serving.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
)

type Index interface {
	GoOnline(ctx context.Context, id uuid.UUID, service types.ServiceType, pos models.FulfillerPosition) error
	GoOffline(ctx context.Context, id uuid.UUID) error
	UpdatePosition(ctx context.Context, id uuid.UUID, pos models.FulfillerPosition) error
	Position(ctx context.Context, id uuid.UUID) (models.FulfillerPosition, error)
}

type TripGetter interface {
	Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
}

type PositionPublisher interface {
	PublishPosition(ctx context.Context, msg models.PositionUpdatePayload) error
}

type Service struct {
	index     Index
	trips     TripGetter
	positions PositionPublisher
	l         logger.Logger

	now func() time.Time
}

func NewService(index Index, trips TripGetter, positions PositionPublisher, l logger.Logger) *Service {
	return &Service{
		index:     index,
		trips:     trips,
		positions: positions,
		l:         l,
		now:       time.Now,
	}
}

func validCoordinates(c models.Coordinates) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180 && !c.IsZero()
}

func (s *Service) GoOnline(ctx context.Context, actor *models.User, service types.ServiceType, pos models.FulfillerPosition) error {
	const op = "FleetService.GoOnline"
	ctx = wrap.WithFulfillerID(wrap.WithAction(ctx, "fulfiller_online"), actor.ID.String())

	if actor.Role != types.RoleFulfiller {
		return fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if !validCoordinates(pos.Coordinates) {
		return fmt.Errorf("%s: %w", op, types.ErrInvalidCoordinates)
	}
	if service == "" {
		service = types.ServiceRide
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = s.now()
	}

	if err := s.index.GoOnline(ctx, actor.ID, service, pos); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	metrics.FulfillersOnlineGauge.Inc()
	s.l.Info(ctx, "fulfiller is online", "service_type", service.String())
	return nil
}

func (s *Service) GoOffline(ctx context.Context, actor *models.User) error {
	const op = "FleetService.GoOffline"
	ctx = wrap.WithFulfillerID(wrap.WithAction(ctx, "fulfiller_offline"), actor.ID.String())

	if actor.Role != types.RoleFulfiller {
		return fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}

	if err := s.index.GoOffline(ctx, actor.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	metrics.FulfillersOnlineGauge.Dec()
	s.l.Info(ctx, "fulfiller is offline")
	return nil
}

// UpdatePosition stores the fulfiller position and, when tripID is set,
// fans it out to the trip room.
func (s *Service) UpdatePosition(ctx context.Context, actor *models.User, tripID uuid.UUID, pos models.FulfillerPosition) error {
	const op = "FleetService.UpdatePosition"
	ctx = wrap.WithFulfillerID(ctx, actor.ID.String())

	if actor.Role != types.RoleFulfiller {
		return fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if !validCoordinates(pos.Coordinates) {
		return fmt.Errorf("%s: %w", op, types.ErrInvalidCoordinates)
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = s.now()
	}

	if err := s.index.UpdatePosition(ctx, actor.ID, pos); err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		// не в пуле, но поездку всё равно ведём
		s.l.Debug(ctx, "position from a fulfiller that is not online")
	}

	if tripID == uuid.Nil {
		return nil
	}
	ctx = wrap.WithTripID(ctx, tripID.String())

	trip, err := s.trips.Get(ctx, tripID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if trip.FulfillerID == nil || *trip.FulfillerID != actor.ID {
		return fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if trip.Status.IsTerminal() {
		return fmt.Errorf("%s: %w", op, types.ErrNoActiveTrip)
	}

	if err := s.positions.PublishPosition(ctx, models.PositionUpdatePayload{
		TripID:      tripID,
		FulfillerID: actor.ID,
		Position:    pos,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LastPosition returns the last known position of the fulfiller serving the trip.
func (s *Service) LastPosition(ctx context.Context, actor *models.User, tripID uuid.UUID) (models.FulfillerPosition, error) {
	const op = "FleetService.LastPosition"

	trip, err := s.trips.Get(ctx, tripID)
	if err != nil {
		return models.FulfillerPosition{}, fmt.Errorf("%s: %w", op, err)
	}

	allowed := actor.Role == types.RoleAdmin || trip.RequesterID == actor.ID ||
		(trip.FulfillerID != nil && *trip.FulfillerID == actor.ID)
	if !allowed {
		return models.FulfillerPosition{}, fmt.Errorf("%s: %w", op, types.ErrForbidden)
	}
	if !trip.HasFulfiller() {
		return models.FulfillerPosition{}, fmt.Errorf("%s: %w", op, types.ErrPositionUnavailable)
	}

	pos, err := s.index.Position(ctx, *trip.FulfillerID)
	if err != nil {
		return models.FulfillerPosition{}, fmt.Errorf("%s: %w", op, err)
	}
	return pos, nil
}
