package dto

import (
	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

type Place struct {
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	ContactName  string   `json:"contact_name,omitempty"`
	ContactPhone string   `json:"contact_phone,omitempty"`
}

func (p *Place) validate(v *validator.Validator, key string) {
	v.Check(p.Address != "", key+".address", "must be provided")
	v.Check(len(p.Address) <= 255, key+".address", "must be at most 255 characters")

	if p.Latitude == nil || p.Longitude == nil {
		v.Check(p.Latitude != nil, key+".latitude", "must be provided")
		v.Check(p.Longitude != nil, key+".longitude", "must be provided")
		return
	}
	v.Check(validator.ValidLatitude(*p.Latitude), key+".latitude", "must be between -90 and 90")
	v.Check(validator.ValidLongitude(*p.Longitude), key+".longitude", "must be between -180 and 180")

	v.Check(len(p.ContactName) <= 100, key+".contact_name", "must be at most 100 characters")
	v.Check(len(p.ContactPhone) <= 32, key+".contact_phone", "must be at most 32 characters")
}

func (p *Place) toModel() models.Place {
	place := models.Place{
		Address:     p.Address,
		Coordinates: models.Coordinates{Lat: *p.Latitude, Lng: *p.Longitude},
	}
	if p.ContactName != "" || p.ContactPhone != "" {
		place.Contact = &models.Contact{Name: p.ContactName, Phone: p.ContactPhone}
	}
	return place
}

type CreateTripRequest struct {
	ServiceType string `json:"service_type"`
	Pickup      Place  `json:"pickup"`
	Dropoff     Place  `json:"dropoff"`
	// only admins create trips on behalf of a requester
	RequesterID *uuid.UUID `json:"requester_id,omitempty"`
	RequirePIN  bool       `json:"require_pin,omitempty"`
}

func (r *CreateTripRequest) Validate(v *validator.Validator) {
	if r.ServiceType != "" {
		v.Check(validator.PermittedValue(types.ServiceType(r.ServiceType), types.ServiceRide, types.ServiceDelivery),
			"service_type", "must be ride or delivery")
	}
	r.Pickup.validate(v, "pickup")
	r.Dropoff.validate(v, "dropoff")

	if v.Valid() {
		v.Check(r.Pickup.toModel().Coordinates != r.Dropoff.toModel().Coordinates, "dropoff", "must differ from pickup")
	}
}

func (r *CreateTripRequest) ToModel() models.CreateTripRequest {
	req := models.CreateTripRequest{
		ServiceType: types.ServiceType(r.ServiceType),
		Pickup:      r.Pickup.toModel(),
		Dropoff:     r.Dropoff.toModel(),
		RequirePIN:  r.RequirePIN,
	}
	if r.RequesterID != nil {
		req.RequesterID = *r.RequesterID
	}
	return req
}

type AdvanceStatusRequest struct {
	Status string `json:"status"`
}

func (r *AdvanceStatusRequest) Validate(v *validator.Validator) {
	v.Check(r.Status != "", "status", "must be provided")
	v.Check(validator.PermittedValue(types.TripStatus(r.Status), types.StatusArrived, types.StatusInProgress, types.StatusCompleted),
		"status", "must be one of arrived, in_progress, completed")
}

// ReasonRequest is the body of cancel and reject.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate(v *validator.Validator) {
	v.Check(len(r.Reason) <= 500, "reason", "must be at most 500 characters")
}
