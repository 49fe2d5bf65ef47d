package models

import (
	"time"

	"github.com/google/uuid"
)

// FulfillerPosition is last-value-wins; no history is kept by the tracking core.
type FulfillerPosition struct {
	Coordinates Coordinates `json:"coordinates"`
	Heading     float64     `json:"heading"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewerThan reports whether p should replace other.
func (p FulfillerPosition) NewerThan(other FulfillerPosition) bool {
	return p.Timestamp.After(other.Timestamp)
}

// PositionSample is produced by a position source. Err set means "position unknown".
type PositionSample struct {
	Position FulfillerPosition
	Err      error
}

// NearbyFulfiller is a candidate returned by the geo index.
type NearbyFulfiller struct {
	ID         uuid.UUID         `json:"id"`
	Position   FulfillerPosition `json:"position"`
	DistanceKm float64           `json:"distance_km"`
}
