package session

import (
	"context"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

const sourcePoll = "poll"

// requestPoll asks the poller for one immediate poll.
func (c *Controller) requestPoll() {
	select {
	case c.wakePoll <- struct{}{}:
	default:
	}
}

func (c *Controller) pollInterval() time.Duration {
	if c.status() == types.StatusPending {
		return c.cfg.PendingPollInterval
	}
	return c.cfg.AttachedPollInterval
}

// shouldPoll: always while matching, otherwise only while the channel is down.
func (c *Controller) shouldPoll() bool {
	return c.status() == types.StatusPending || !c.channel.Connected()
}

func (c *Controller) pollLoop(ctx context.Context) {
	timer := time.NewTimer(c.pollInterval())
	defer timer.Stop()

	for {
		forced := false
		select {
		case <-ctx.Done():
			return
		case <-c.wakePoll:
			forced = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if forced || c.shouldPoll() {
			c.refresh(ctx, sourcePoll)
		}

		if c.status().IsTerminal() {
			return
		}

		// reads double as the route retry tick for clients without a sampler
		if c.positions == nil {
			c.resolveRoute(ctx)
		}
		timer.Reset(c.pollInterval())
	}
}

func (c *Controller) sampleLoop(ctx context.Context) {
	samples := c.positions.Samples(ctx, c.cfg.PositionInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			if s.Err != nil {
				c.markPositionUnknown(ctx, s.Err)
				continue
			}
			c.applyPosition(ctx, s.Position)
			c.publishPosition(ctx, s.Position)
		}
	}
}

// publishPosition forwards the fulfiller's own position to the trip room. Lossy.
func (c *Controller) publishPosition(ctx context.Context, pos models.FulfillerPosition) {
	if c.cfg.Role != types.RoleFulfiller || !c.channel.Connected() {
		return
	}

	trip := c.Trip()
	if trip.Status.IsTerminal() || !trip.HasFulfiller() {
		return
	}

	payload := models.PositionUpdatePayload{
		TripID:      trip.ID,
		FulfillerID: *trip.FulfillerID,
		Position:    pos,
	}
	if err := c.channel.Emit(ctx, types.EventPositionUpdate, trip.ID.String(), payload); err != nil {
		c.logger.Debug(ctx, "position publish failed", "error", err.Error())
	}
}
