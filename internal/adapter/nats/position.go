// Package nats fans fulfiller positions out between server instances.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
)

const positionWildcard = "trip.*.position"

type PositionBus struct {
	nc *nats.Conn
	l  logger.Logger
}

func NewPositionBus(url, name string, l logger.Logger) (*PositionBus, error) {
	ctx := wrap.WithAction(context.Background(), types.ActionNatsConnected)

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn(ctx, "nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			l.Info(ctx, "nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			l.Debug(ctx, "nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	l.Info(ctx, "connected to nats", "url", nc.ConnectedUrl())
	return &PositionBus{nc: nc, l: l}, nil
}

// positionSubject example: "trip.<id>.position"
func positionSubject(tripID uuid.UUID) string {
	return fmt.Sprintf("trip.%s.position", tripID)
}

// tripFromSubject extracts the trip id out of a position subject.
func tripFromSubject(subject string) (uuid.UUID, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "trip" || parts[2] != "position" {
		return uuid.Nil, fmt.Errorf("unexpected subject %q", subject)
	}
	return uuid.Parse(parts[1])
}

func (b *PositionBus) PublishPosition(ctx context.Context, msg models.PositionUpdatePayload) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	err = b.nc.Publish(positionSubject(msg.TripID), data)
	metrics.RecordNATSPublish(err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("publish position: %w", err))
	}
	return nil
}

type PositionHandler func(ctx context.Context, msg models.PositionUpdatePayload)

// SubscribePositions delivers every trip position until ctx is done.
func (b *PositionBus) SubscribePositions(ctx context.Context, handler PositionHandler) error {
	ctx = wrap.WithAction(ctx, "nats_consume_positions")

	sub, err := b.nc.Subscribe(positionWildcard, func(m *nats.Msg) {
		tripID, err := tripFromSubject(m.Subject)
		if err != nil {
			b.l.Warn(ctx, "dropping position", "error", err.Error())
			return
		}

		var msg models.PositionUpdatePayload
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.l.Warn(ctx, "failed to decode position", "error", err.Error())
			return
		}
		if msg.TripID != tripID {
			b.l.Warn(ctx, "position trip id does not match subject", "subject", m.Subject)
			return
		}

		handler(wrap.WithTripID(ctx, tripID.String()), msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", positionWildcard, err)
	}

	b.l.Info(ctx, "start consuming positions", "subject", positionWildcard)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		b.l.Debug(ctx, "unsubscribe failed", "error", err.Error())
	}
	return nil
}

func (b *PositionBus) Close() {
	if b.nc != nil {
		b.nc.Drain()
		b.nc.Close()
	}
}

// Healthy reports whether the connection is currently up.
func (b *PositionBus) Healthy(context.Context) error {
	if b.nc == nil || !b.nc.IsConnected() {
		return errors.New("nats is not connected")
	}
	return nil
}
