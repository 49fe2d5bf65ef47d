package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const sourceAction = "action"

// Human actions. Failures are returned to the caller and never retried here:
// the backend operations are not idempotent.

func (c *Controller) ConfirmArrival(ctx context.Context) error {
	return c.advance(wrap.WithAction(ctx, "confirm_arrival"), types.StatusArrived)
}

func (c *Controller) StartTrip(ctx context.Context) error {
	return c.advance(wrap.WithAction(ctx, "start_trip"), types.StatusInProgress)
}

func (c *Controller) CompleteTrip(ctx context.Context) error {
	return c.advance(wrap.WithAction(ctx, "complete_trip"), types.StatusCompleted)
}

func (c *Controller) advance(ctx context.Context, target types.TripStatus) error {
	const op = "Controller.advance"

	if c.cfg.Role != types.RoleFulfiller {
		return fmt.Errorf("%s: %w: only the fulfiller advances a trip", op, types.ErrForbidden)
	}

	tripID := c.tripID()
	ctx = wrap.WithTripID(ctx, tripID.String())

	event, _ := tripfsm.EventFor(target)
	if _, err := tripfsm.Next(c.status(), event); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	trip, err := c.api.AdvanceStatus(ctx, tripID, target)
	if err != nil {
		if errors.Is(err, types.ErrTransitionRejected) {
			// show what the server has instead of our stale view
			c.refresh(ctx, sourceAction)
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	c.applyTrip(ctx, trip, sourceAction)
	return nil
}

// Cancel validates the cancellation policy before calling the server.
// In-progress trips need confirmed=true.
func (c *Controller) Cancel(ctx context.Context, reason string, confirmed bool) error {
	const op = "Controller.Cancel"

	tripID := c.tripID()
	ctx = wrap.WithTripID(wrap.WithAction(ctx, "cancel_trip"), tripID.String())

	if err := tripfsm.CheckCancel(c.status(), confirmed); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", c.cfg.Role)
	}

	if err := c.api.CancelTrip(ctx, tripID, reason); err != nil {
		if errors.Is(err, types.ErrTransitionRejected) {
			c.refresh(ctx, sourceAction)
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	c.applyStatus(ctx, statusUpdate{status: types.StatusCancelled, reason: &reason}, sourceAction)
	return nil
}

// RetryTrip creates a brand new trip from this one once matching was exhausted.
// The caller starts a new session for it; this one stays terminal.
func (c *Controller) RetryTrip(ctx context.Context) (*models.Trip, error) {
	const op = "Controller.RetryTrip"

	ctx = wrap.WithAction(ctx, "retry_trip")

	trip := c.Trip()
	if trip.Status != types.StatusNoFulfillerAvailable {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, types.ErrRetryNotAllowed))
	}

	created, err := c.api.CreateTrip(ctx, trip.RetryRequest())
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	c.logger.Info(ctx, "trip retried", "new_trip_id", created.ID.String())
	return created, nil
}

// SendChat passes a chat message through the channel.
func (c *Controller) SendChat(ctx context.Context, from uuid.UUID, text string) error {
	if !c.channel.Connected() {
		return types.ErrChannelDisconnected
	}
	tripID := c.tripID()
	return c.channel.Emit(ctx, types.EventChatMessage, tripID.String(), models.ChatMessagePayload{
		TripID: tripID,
		From:   from,
		Text:   text,
		SentAt: time.Now(),
	})
}
