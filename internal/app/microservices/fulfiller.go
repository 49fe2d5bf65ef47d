package microservices

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/config"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/position"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/offer"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/session"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/tripfsm"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

// keeps the fulfiller fresh in the geo index while idle
const heartbeatInterval = 15 * time.Second

// Fulfiller is a headless fulfiller: it goes online, takes offers and drives accepted trips
// along a replayed route.
type Fulfiller struct {
	a        *agent
	offers   *offer.Manager
	replay   *position.Replay
	accepted chan *models.Trip
}

func NewFulfiller(ctx context.Context, cfg config.Config, log logger.Logger) (*Fulfiller, error) {
	a, err := newAgent(ctx, cfg, types.RoleFulfiller, log)
	if err != nil {
		log.Error(ctx, "Failed to setup fulfiller agent", err)
		return nil, err
	}

	return &Fulfiller{
		a: a,
		offers: offer.NewManager(a.api, offer.Config{
			RideTimeout:     cfg.Tracking.RideOfferTimeout,
			DeliveryTimeout: cfg.Tracking.DeliveryOfferTimeout,
		}, log),
		replay:   position.NewReplay(models.Coordinates{Lat: cfg.Agent.StartLat, Lng: cfg.Agent.StartLng}, cfg.Agent.SpeedMps),
		accepted: make(chan *models.Trip, 4),
	}, nil
}

func (f *Fulfiller) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = wrap.WithAction(f.a.ctx(ctx), "fulfiller_agent")
	log := f.a.log

	f.listen(ctx)
	f.a.channel.Start(ctx)
	defer f.a.channel.Close()

	service := types.ServiceType(f.a.cfg.Agent.ServiceType)
	if err := f.a.api.GoOnline(ctx, service, f.replay.Position()); err != nil {
		log.Error(ctx, "failed to go online", err)
		return err
	}
	defer func() {
		if err := f.a.api.GoOffline(context.WithoutCancel(ctx)); err != nil {
			log.Warn(ctx, "failed to go offline", "error", err.Error())
		}
	}()
	log.Info(ctx, "fulfiller is online", "user_id", f.a.user.ID.String(), "service", service.String())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(context.WithoutCancel(ctx), "fulfiller agent stopped")
			return nil
		case trip := <-f.accepted:
			f.drive(ctx, trip)
		case <-heartbeat.C:
			if err := f.a.api.UpdateLocation(ctx, uuid.Nil, f.replay.Position()); err != nil {
				log.Debug(ctx, "heartbeat failed", "error", err.Error())
			}
		}
	}
}

// listen wires channel events into the offer manager.
func (f *Fulfiller) listen(ctx context.Context) {
	log := f.a.log

	f.a.channel.On(types.EventTripOffer, func(env models.Envelope) {
		var o models.Offer
		if err := env.Decode(&o); err != nil {
			log.Warn(ctx, "bad trip-offer payload", "error", err.Error())
			return
		}
		f.offers.Receive(ctx, o)
	})
	f.a.channel.On(types.EventOfferRevoked, func(env models.Envelope) {
		var p models.OfferRevokedPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		f.offers.Revoke(ctx, p.TripID)
	})

	f.offers.OnPresented(func(o models.Offer) {
		go f.consider(ctx, o)
	})
	f.offers.OnAccepted(func(trip *models.Trip) {
		select {
		case f.accepted <- trip:
		default:
			log.Warn(ctx, "accepted trip dropped, agent is overloaded", "trip_id", trip.ID.String())
		}
	})
	f.offers.OnCleared(func(tripID uuid.UUID, reason string) {
		log.Info(wrap.WithTripID(ctx, tripID.String()), "offer cleared", "reason", reason)
	})
}

// consider plays a human looking at the offer for a moment before accepting it.
func (f *Fulfiller) consider(ctx context.Context, o models.Offer) {
	ctx = wrap.WithTripID(ctx, o.TripID.String())

	if !sleepCtx(ctx, f.a.cfg.Agent.AcceptDelay) {
		return
	}
	if current, ok := f.offers.Current(); !ok || current.TripID != o.TripID {
		return
	}
	if _, err := f.offers.Accept(ctx); err != nil {
		f.a.log.Warn(ctx, "failed to accept offer", "error", err.Error())
	}
}

func (f *Fulfiller) drive(ctx context.Context, trip *models.Trip) {
	ctx = wrap.WithTripID(ctx, trip.ID.String())
	log := f.a.log

	f.replay.Follow(trip.Pickup.Coordinates)

	ctrl := f.a.newSession(f.replay)
	ctrl.OnStatus(func(status types.TripStatus) {
		f.offers.TripProgressed(trip.ID, status)
	})
	ctrl.OnChat(func(msg models.ChatMessagePayload) {
		log.Info(ctx, "chat message", "from", msg.From.String(), "text", msg.Text)
	})
	if err := ctrl.Start(ctx, trip); err != nil {
		log.Error(ctx, "failed to start trip session", err)
		return
	}
	defer ctrl.Stop(context.WithoutCancel(ctx))

	if err := ctrl.SendChat(ctx, f.a.user.ID, "on my way"); err != nil {
		log.Debug(ctx, "chat not sent", "error", err.Error())
	}

	var acting atomic.Bool
	act := func(name string, fn func(context.Context) error, then func()) {
		if !acting.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer acting.Store(false)
			if !sleepCtx(ctx, f.a.cfg.Agent.StopDwell) {
				return
			}
			if err := fn(ctx); err != nil {
				log.Warn(ctx, "trip action failed", "action", name, "error", err.Error())
				return
			}
			if then != nil {
				then()
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-ctrl.Updates():
			if !ok {
				return
			}
			if view.Status.IsTerminal() {
				log.Info(ctx, "trip finished", "status", view.Status.String())
				return
			}
			f.next(view, ctrl, act)
		}
	}
}

func (f *Fulfiller) next(view tripfsm.View, ctrl *session.Controller, act func(string, func(context.Context) error, func())) {
	switch view.Status {
	case types.StatusAccepted:
		if view.ArrivalAvailable {
			act("confirm_arrival", ctrl.ConfirmArrival, nil)
		}
	case types.StatusArrived:
		act("start_trip", ctrl.StartTrip, func() {
			f.replay.Follow(ctrl.Trip().Dropoff.Coordinates)
		})
	case types.StatusInProgress:
		if view.ArrivalAvailable {
			act("complete_trip", ctrl.CompleteTrip, nil)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
