package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

type Coordinates = geo.Coordinates

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Place is a pickup or dropoff point. Immutable after trip creation.
type Place struct {
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
	Contact     *Contact    `json:"contact,omitempty"`
}

// Trip is a ride or a delivery, discriminated by ServiceType.
type Trip struct {
	ID          uuid.UUID         `json:"id"`
	ServiceType types.ServiceType `json:"service_type"`
	Status      types.TripStatus  `json:"status"`
	Pickup      Place             `json:"pickup"`
	Dropoff     Place             `json:"dropoff"`

	// Fixed at creation
	Fare        float64 `json:"fare"`
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`

	RequesterID uuid.UUID  `json:"requester_id"`
	FulfillerID *uuid.UUID `json:"fulfiller_id,omitempty"`

	// Only for rides with PIN verification
	SecurityCode *string `json:"security_code,omitempty"`

	CancellationReason *string `json:"cancellation_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// HasFulfiller reports whether a fulfiller has been attached.
func (t *Trip) HasFulfiller() bool {
	return t.FulfillerID != nil && *t.FulfillerID != uuid.Nil
}

// RetryRequest builds the request for a brand new trip with the same route and service type.
// The new trip gets its own id and a freshly computed fare.
func (t *Trip) RetryRequest() CreateTripRequest {
	return CreateTripRequest{
		ServiceType: t.ServiceType,
		Pickup:      t.Pickup,
		Dropoff:     t.Dropoff,
		RequesterID: t.RequesterID,
		RequirePIN:  t.SecurityCode != nil,
	}
}

// CreateTripRequest is what a requester submits.
type CreateTripRequest struct {
	ServiceType types.ServiceType `json:"service_type"`
	Pickup      Place             `json:"pickup"`
	Dropoff     Place             `json:"dropoff"`
	RequesterID uuid.UUID         `json:"requester_id"`
	RequirePIN  bool              `json:"require_pin,omitempty"`
}

// TripFilter narrows trip listings for the admin surface.
type TripFilter struct {
	Statuses []types.TripStatus
	Filters  Filters
}
