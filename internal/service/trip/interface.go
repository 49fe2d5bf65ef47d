package trip

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

/*=================Trip Repository======================*/

type TripRepo interface {
	Create(ctx context.Context, trip *models.Trip) error
	Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	List(ctx context.Context, userID uuid.UUID, filter models.TripFilter) ([]models.Trip, models.Metadata, error)
	// UpdateStatus moves the trip only if it is still in `from`, otherwise ErrTransitionRejected.
	UpdateStatus(ctx context.Context, tripID uuid.UUID, from, to types.TripStatus, at time.Time) (*models.Trip, error)
	// AssignFulfiller succeeds only while the trip is pending with no fulfiller, otherwise ErrOfferConflict.
	AssignFulfiller(ctx context.Context, tripID, fulfillerID uuid.UUID, at time.Time) (*models.Trip, error)
	// Cancel succeeds only while the trip is not terminal, otherwise ErrTransitionRejected.
	Cancel(ctx context.Context, tripID uuid.UUID, reason string, at time.Time) (*models.Trip, error)
}

type TripEventRepo interface {
	// CreateEvent записывает событие поездки в таблицу trip_events
	CreateEvent(ctx context.Context, tripID uuid.UUID, eventType types.TripEventType, data json.RawMessage) error
	History(ctx context.Context, tripID uuid.UUID) ([]models.TripEvent, error)
}

/*========================Publisher===============================*/

type Publisher interface {
	PublishTripEvent(ctx context.Context, msg models.TripEventMessage) error
}

/*=====================Fulfiller Index============================*/

type FulfillerIndex interface {
	Nearby(ctx context.Context, service types.ServiceType, center models.Coordinates, radiusKm float64, limit int) ([]models.NearbyFulfiller, error)
	SetStatus(ctx context.Context, fulfillerID uuid.UUID, status types.FulfillerStatus) error
}

/*===========================Sender===============================*/

// OfferSender delivers offers directly to a fulfiller connection.
type OfferSender interface {
	SendOffer(ctx context.Context, fulfillerID uuid.UUID, offer models.Offer) error
	RevokeOffer(ctx context.Context, fulfillerID, tripID uuid.UUID) error
}

/*==========================Geocoder==============================*/

// Geocoder names a point for places submitted without an address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, point models.Coordinates) (string, error)
}

type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
