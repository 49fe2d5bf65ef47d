package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

type Location struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Heading   float64    `json:"heading"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (l *Location) validate(v *validator.Validator) {
	if l.Latitude == nil || l.Longitude == nil {
		v.Check(l.Latitude != nil, "latitude", "must be provided")
		v.Check(l.Longitude != nil, "longitude", "must be provided")
		return
	}
	v.Check(validator.ValidLatitude(*l.Latitude), "latitude", "must be between -90 and 90")
	v.Check(validator.ValidLongitude(*l.Longitude), "longitude", "must be between -180 and 180")
	v.Check(l.Heading >= 0 && l.Heading < 360, "heading", "must be between 0 and 360")
}

func (l *Location) ToModel() models.FulfillerPosition {
	pos := models.FulfillerPosition{
		Coordinates: models.Coordinates{Lat: *l.Latitude, Lng: *l.Longitude},
		Heading:     l.Heading,
	}
	if l.Timestamp != nil {
		pos.Timestamp = *l.Timestamp
	}
	return pos
}

type GoOnlineRequest struct {
	ServiceType string `json:"service_type"`
	Location
}

func (r *GoOnlineRequest) Validate(v *validator.Validator) {
	if r.ServiceType != "" {
		v.Check(validator.PermittedValue(types.ServiceType(r.ServiceType), types.ServiceRide, types.ServiceDelivery),
			"service_type", "must be ride or delivery")
	}
	r.Location.validate(v)
}

type LocationUpdateRequest struct {
	TripID *uuid.UUID `json:"trip_id,omitempty"`
	Location
}

func (r *LocationUpdateRequest) Validate(v *validator.Validator) {
	r.Location.validate(v)
}

func (r *LocationUpdateRequest) Trip() uuid.UUID {
	if r.TripID == nil {
		return uuid.Nil
	}
	return *r.TripID
}
