package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

// Offer is an ephemeral projection of a pending trip shown to one fulfiller.
// Never persisted on the client.
type Offer struct {
	TripID               uuid.UUID         `json:"trip_id"`
	ServiceType          types.ServiceType `json:"service_type"`
	Pickup               Place             `json:"pickup"`
	Dropoff              Place             `json:"dropoff"`
	Fare                 float64           `json:"fare"`
	DistanceToPickupKm   float64           `json:"distance_to_pickup_km"`
	EstimatedDurationMin int               `json:"estimated_duration_min"`
	ExpiresAt            time.Time         `json:"expires_at"`

	ReceivedAt time.Time `json:"-"`
}

// IsExpired reports whether the offer is past its expiry at now.
func (o *Offer) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// OfferDecision is sent by the fulfiller when rejecting.
type OfferDecision struct {
	TripID      uuid.UUID `json:"trip_id"`
	FulfillerID uuid.UUID `json:"fulfiller_id"`
	Accepted    bool      `json:"accepted"`
	Reason      string    `json:"reason,omitempty"`
}
