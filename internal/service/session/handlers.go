package session

import (
	"context"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

const sourceChannel = "channel"

func (c *Controller) subscribe(ctx context.Context) {
	offs := []func(){
		c.channel.On(types.EventTripStatus, func(env models.Envelope) { c.onTripStatus(ctx, env) }),
		c.channel.On(types.EventTripAccepted, func(env models.Envelope) { c.onTripAccepted(ctx, env) }),
		c.channel.On(types.EventTripCancelled, func(env models.Envelope) { c.onTripCancelled(ctx, env) }),
		c.channel.On(types.EventNoFulfillers, func(env models.Envelope) { c.onNoFulfillers(ctx, env) }),
		c.channel.On(types.EventPositionUpdate, func(env models.Envelope) { c.onPositionUpdate(ctx, env) }),
		c.channel.On(types.EventChatMessage, func(env models.Envelope) { c.onChatMessage(ctx, env) }),
		c.channel.OnConnect(func() { c.onReconnect(ctx) }),
		c.channel.OnDisconnect(func(err error) { c.onDisconnect(ctx, err) }),
	}

	c.mu.Lock()
	c.offs = offs
	c.mu.Unlock()
}

func (c *Controller) onTripStatus(ctx context.Context, env models.Envelope) {
	var p models.TripStatusPayload
	if err := env.Decode(&p); err != nil {
		c.logger.Warn(ctx, "bad trip-status payload", "error", err.Error())
		return
	}
	if p.TripID != c.tripID() {
		return
	}
	c.applyStatus(ctx, statusUpdate{status: p.Status, fulfillerID: p.FulfillerID}, sourceChannel)
}

func (c *Controller) onTripAccepted(ctx context.Context, env models.Envelope) {
	var p models.TripAcceptedPayload
	if err := env.Decode(&p); err != nil {
		c.logger.Warn(ctx, "bad trip-accepted payload", "error", err.Error())
		return
	}
	if p.TripID != c.tripID() {
		return
	}
	id := p.FulfillerID
	c.applyStatus(ctx, statusUpdate{status: types.StatusAccepted, fulfillerID: &id}, sourceChannel)
}

func (c *Controller) onTripCancelled(ctx context.Context, env models.Envelope) {
	var p models.TripCancelledPayload
	if err := env.Decode(&p); err != nil {
		c.logger.Warn(ctx, "bad trip-cancelled payload", "error", err.Error())
		return
	}
	if p.TripID != c.tripID() {
		return
	}
	// reason is forwarded untouched
	reason := p.Reason
	c.applyStatus(ctx, statusUpdate{status: types.StatusCancelled, reason: &reason}, sourceChannel)
}

func (c *Controller) onNoFulfillers(ctx context.Context, env models.Envelope) {
	var p models.NoFulfillersPayload
	if err := env.Decode(&p); err != nil {
		c.logger.Warn(ctx, "bad no-fulfillers payload", "error", err.Error())
		return
	}
	if p.TripID != c.tripID() {
		return
	}
	c.applyStatus(ctx, statusUpdate{status: types.StatusNoFulfillerAvailable}, sourceChannel)
}

func (c *Controller) onPositionUpdate(ctx context.Context, env models.Envelope) {
	// the fulfiller drives its own position from the sampler
	if c.cfg.Role == types.RoleFulfiller {
		return
	}

	var p models.PositionUpdatePayload
	if err := env.Decode(&p); err != nil {
		c.logger.Debug(ctx, "bad position-update payload", "error", err.Error())
		return
	}
	if p.TripID != c.tripID() {
		return
	}
	c.applyPosition(ctx, p.Position)
}

func (c *Controller) onChatMessage(ctx context.Context, env models.Envelope) {
	var p models.ChatMessagePayload
	if err := env.Decode(&p); err != nil {
		return
	}
	if p.TripID != c.tripID() {
		return
	}

	c.mu.Lock()
	hook := c.chatHook
	c.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

// onReconnect re-joins the room and polls once, missed events are not retransmitted.
func (c *Controller) onReconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.logger.Info(ctx, "channel reconnected, rejoining trip room", "action", types.ActionChannelConnected)
	c.joinRoom(ctx)
	c.requestPoll()
}

func (c *Controller) onDisconnect(ctx context.Context, err error) {
	msg := "closed"
	if err != nil {
		msg = err.Error()
	}
	c.logger.Warn(ctx, "channel disconnected, polling until it is back", "action", types.ActionChannelDisconnected, "error", msg)
}

func (c *Controller) joinRoom(ctx context.Context) {
	tripID := c.tripID()
	if err := c.channel.Emit(ctx, types.EventJoinTripRoom, tripID.String(), models.JoinRoomPayload{TripID: tripID}); err != nil {
		c.logger.Debug(ctx, "join room failed", "error", err.Error())
	}
}
