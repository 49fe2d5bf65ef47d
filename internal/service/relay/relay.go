// Package relay delivers trip events and positions to the live tracking
// connections held by this server instance.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/ride-tracking-system/pkg/wsHub"
)

type Hub interface {
	SendTo(id uuid.UUID, msg any) error
	Broadcast(room string, msg any, except uuid.UUID) int
	CloseRoom(room string)
}

type Publisher interface {
	PublishTripEvent(ctx context.Context, msg models.TripEventMessage) error
}

type Relay struct {
	hub Hub
	pub Publisher
	l   logger.Logger

	now func() time.Time
}

func New(hub Hub, pub Publisher, l logger.Logger) *Relay {
	return &Relay{hub: hub, pub: pub, l: l, now: time.Now}
}

// HandleTripEvent is fed by the bus consumer. Addressed events go to one user,
// the rest to everybody in the trip room.
func (r *Relay) HandleTripEvent(ctx context.Context, msg models.TripEventMessage) error {
	ctx = wrap.WithTripID(ctx, msg.TripID.String())
	if msg.CorrelationID != "" {
		ctx = wrap.WithRequestID(ctx, msg.CorrelationID)
	}

	env := models.Envelope{Event: msg.Event, TripID: msg.TripID.String(), Payload: msg.Payload}

	if msg.RecipientID != nil {
		err := r.hub.SendTo(*msg.RecipientID, env)
		switch {
		case errors.Is(err, ws.ErrConnIsNotFound):
			// соединение на другом инстансе
			return nil
		case err != nil:
			r.l.Warn(ctx, "failed to deliver addressed event", "event", msg.Event.String(), "error", err.Error())
		}
		return nil
	}

	room := msg.TripID.String()
	sent := r.hub.Broadcast(room, env, uuid.Nil)
	r.l.Debug(ctx, "trip event relayed", "event", msg.Event.String(), "receivers", sent)

	if closesRoom(msg) {
		r.hub.CloseRoom(room)
	}
	return nil
}

func closesRoom(msg models.TripEventMessage) bool {
	switch msg.Event {
	case types.EventTripCancelled:
		return true
	case types.EventTripStatus:
		var p models.TripStatusPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false
		}
		return p.Status.IsTerminal()
	}
	return false
}

// HandlePosition fans a fulfiller position out to the trip room, skipping the fulfiller.
func (r *Relay) HandlePosition(ctx context.Context, msg models.PositionUpdatePayload) {
	env, err := models.NewEnvelope(types.EventPositionUpdate, msg.TripID.String(), msg)
	if err != nil {
		r.l.Error(ctx, "failed to build position envelope", err)
		return
	}
	r.hub.Broadcast(msg.TripID.String(), env, msg.FulfillerID)
}

// SendOffer delivers an offer to the fulfiller. When the fulfiller is connected
// to another instance the offer travels over the bus.
func (r *Relay) SendOffer(ctx context.Context, fulfillerID uuid.UUID, offer models.Offer) error {
	return r.deliver(ctx, types.EventTripOffer, offer.TripID, fulfillerID, offer)
}

func (r *Relay) RevokeOffer(ctx context.Context, fulfillerID, tripID uuid.UUID) error {
	return r.deliver(ctx, types.EventOfferRevoked, tripID, fulfillerID, models.OfferRevokedPayload{TripID: tripID})
}

func (r *Relay) deliver(ctx context.Context, event types.ChannelEvent, tripID, userID uuid.UUID, payload any) error {
	const op = "Relay.deliver"

	env, err := models.NewEnvelope(event, tripID.String(), payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = r.hub.SendTo(userID, env)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ws.ErrConnIsNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	recipient := userID
	if err := r.pub.PublishTripEvent(ctx, models.TripEventMessage{
		Event:         event,
		TripID:        tripID,
		RecipientID:   &recipient,
		Payload:       env.Payload,
		Timestamp:     r.now(),
		CorrelationID: wrap.GetRequestID(ctx),
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
