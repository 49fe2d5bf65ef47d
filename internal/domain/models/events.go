package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

// Envelope is the wire frame of the live tracking channel.
type Envelope struct {
	Event   types.ChannelEvent `json:"event"`
	TripID  string             `json:"trip_id,omitempty"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(event types.ChannelEvent, tripID string, payload any) (Envelope, error) {
	env := Envelope{Event: event, TripID: tripID}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Event, err)
	}
	return nil
}

type JoinRoomPayload struct {
	TripID uuid.UUID `json:"trip_id"`
}

type TripStatusPayload struct {
	TripID      uuid.UUID        `json:"trip_id"`
	Status      types.TripStatus `json:"status"`
	FulfillerID *uuid.UUID       `json:"fulfiller_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

type TripAcceptedPayload struct {
	TripID      uuid.UUID `json:"trip_id"`
	FulfillerID uuid.UUID `json:"fulfiller_id"`
	Trip        *Trip     `json:"trip,omitempty"`
}

type TripCancelledPayload struct {
	TripID      uuid.UUID      `json:"trip_id"`
	Reason      string         `json:"reason"`
	CancelledBy types.UserRole `json:"cancelled_by,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type PositionUpdatePayload struct {
	TripID      uuid.UUID         `json:"trip_id"`
	FulfillerID uuid.UUID         `json:"fulfiller_id"`
	Position    FulfillerPosition `json:"position"`
}

type NoFulfillersPayload struct {
	TripID    uuid.UUID `json:"trip_id"`
	Timestamp time.Time `json:"timestamp"`
}

type OfferRevokedPayload struct {
	TripID uuid.UUID `json:"trip_id"`
}

// ChatMessagePayload is passed through untouched.
type ChatMessagePayload struct {
	TripID uuid.UUID `json:"trip_id"`
	From   uuid.UUID `json:"from"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// TripEventMessage travels over the message bus between server instances.
// The relay turns it into an Envelope for the trip room (and for the addressed user, if any).
type TripEventMessage struct {
	Event         types.ChannelEvent `json:"event"`
	TripID        uuid.UUID          `json:"trip_id"`
	RecipientID   *uuid.UUID         `json:"recipient_id,omitempty"`
	Payload       json.RawMessage    `json:"payload"`
	Timestamp     time.Time          `json:"timestamp"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// TripEvent is one row of the trip history.
type TripEvent struct {
	ID        int64               `json:"id"`
	EventType types.TripEventType `json:"event_type"`
	Data      json.RawMessage     `json:"data"`
	CreatedAt time.Time           `json:"created_at"`
}
