package microservices

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Temutjin2k/ride-tracking-system/config"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

// Requester creates one trip and follows it until it ends.
// When no fulfiller was found it retries up to Agent.MaxRetries times.
type Requester struct {
	a *agent
}

func NewRequester(ctx context.Context, cfg config.Config, log logger.Logger) (*Requester, error) {
	a, err := newAgent(ctx, cfg, types.RoleRequester, log)
	if err != nil {
		log.Error(ctx, "Failed to setup requester agent", err)
		return nil, err
	}
	return &Requester{a: a}, nil
}

func (r *Requester) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = wrap.WithAction(r.a.ctx(ctx), "requester_agent")
	log := r.a.log
	cfg := r.a.cfg.Agent

	r.a.channel.Start(ctx)
	defer r.a.channel.Close()

	trip, err := r.a.api.CreateTrip(ctx, models.CreateTripRequest{
		ServiceType: types.ServiceType(cfg.ServiceType),
		Pickup:      r.a.place(cfg.PickupLat, cfg.PickupLng, "pickup"),
		Dropoff:     r.a.place(cfg.DropoffLat, cfg.DropoffLng, "dropoff"),
	})
	if err != nil {
		log.Error(ctx, "failed to create trip", err)
		return err
	}

	for attempt := 0; ; attempt++ {
		next, err := r.follow(ctx, trip, attempt < cfg.MaxRetries)
		if err != nil || next == nil {
			return err
		}
		trip = next
	}
}

// follow runs one session. When matching was exhausted and retry is allowed
// it returns the freshly created trip.
func (r *Requester) follow(ctx context.Context, trip *models.Trip, retry bool) (*models.Trip, error) {
	ctx = wrap.WithTripID(ctx, trip.ID.String())
	log := r.a.log

	ctrl := r.a.newSession(nil)
	ctrl.OnStatus(func(status types.TripStatus) {
		log.Info(ctx, "trip status", "status", status.String())
	})
	ctrl.OnChat(func(msg models.ChatMessagePayload) {
		log.Info(ctx, "chat message", "from", msg.From.String(), "text", msg.Text)
	})
	if err := ctrl.Start(ctx, trip); err != nil {
		log.Error(ctx, "failed to start trip session", err)
		return nil, err
	}
	defer ctrl.Stop(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case view, ok := <-ctrl.Updates():
			if !ok {
				return nil, nil
			}
			if view.PositionUnknown || view.RouteUnavailable {
				log.Debug(ctx, "tracking degraded", "position_unknown", view.PositionUnknown, "route_unavailable", view.RouteUnavailable)
			}
			if view.Position != nil && view.ETAText != "" {
				log.Debug(ctx, "fulfiller on the way", "eta", view.ETAText, "distance_m", view.DistanceToDestinationM)
			}
			if !view.Status.IsTerminal() {
				continue
			}

			if !view.RetryAvailable || !retry {
				log.Info(ctx, "requester agent done", "status", view.Status.String())
				return nil, nil
			}
			next, err := ctrl.RetryTrip(ctx)
			if err != nil {
				log.Error(ctx, "failed to retry trip", err)
				return nil, err
			}
			return next, nil
		}
	}
}
