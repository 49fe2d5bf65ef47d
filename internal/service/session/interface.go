package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
)

// TripAPI is the trip CRUD surface of the coordinating server.
type TripAPI interface {
	CreateTrip(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error)
	GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	AdvanceStatus(ctx context.Context, tripID uuid.UUID, target types.TripStatus) (*models.Trip, error)
	CancelTrip(ctx context.Context, tripID uuid.UUID, reason string) error
}

// Channel is a live tracking connection owned by whoever started the session.
type Channel interface {
	Emit(ctx context.Context, event types.ChannelEvent, tripID string, payload any) error
	// On registers a handler and returns a func that removes it.
	On(event types.ChannelEvent, handler func(models.Envelope)) (off func())
	OnConnect(fn func()) (off func())
	OnDisconnect(fn func(error)) (off func())
	Connected() bool
}

// PositionSource yields fulfiller positions. A sample with Err means "position unknown".
type PositionSource interface {
	Samples(ctx context.Context, interval time.Duration) <-chan models.PositionSample
}

type RouteResolver interface {
	Ensure(ctx context.Context, tripID uuid.UUID, leg tripfsm.Leg, origin *models.Coordinates, fallbackOrigin, destination models.Coordinates) (models.LiveRoute, bool, error)
	Reset(tripID uuid.UUID)
	Forget(tripID uuid.UUID)
}

// Announcer speaks or displays a turn instruction.
type Announcer interface {
	Announce(ctx context.Context, step models.Step)
}
