package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
	"github.com/Temutjin2k/ride-tracking-system/pkg/rabbit"
)

const (
	TripExchange = "trip_topic"

	// every server instance relays every trip event to its own websocket clients
	relayQueuePrefix = "trip_relay."
	relayBindingKey  = "trip.#"
)

type TripBroker struct {
	client     *rabbit.RabbitMQ
	exchange   string
	instanceID string

	l logger.Logger
}

func NewTripBroker(client *rabbit.RabbitMQ, instanceID string, l logger.Logger) *TripBroker {
	return &TripBroker{
		client:     client,
		exchange:   TripExchange,
		instanceID: instanceID,
		l:          l,
	}
}

// routingKey example: "trip.trip-status"
func routingKey(msg models.TripEventMessage) string {
	return "trip." + msg.Event.String()
}

func (b *TripBroker) declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil)
}

// PublishTripEvent отправляет событие поездки в exchange 'trip_topic' с ключом 'trip.{event}'.
func (b *TripBroker) PublishTripEvent(ctx context.Context, msg models.TripEventMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_trip_event")

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal message: %w", err))
	}
	key := routingKey(msg)

	err = retry(3, 500*time.Millisecond, func() error {
		if err := b.client.EnsureConnection(ctx); err != nil {
			return err
		}
		ch, err := b.client.Ch()
		if err != nil {
			return err
		}
		if err := b.declareExchange(ch); err != nil {
			return fmt.Errorf("declare exchange: %w", err)
		}
		return ch.PublishWithContext(ctx, b.exchange, key, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: msg.CorrelationID,
			Body:          body,
			Timestamp:     msg.Timestamp,
		})
	})
	metrics.RecordRabbitMQPublish(b.exchange, key, err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish with context: %w", err))
	}
	return nil
}

type TripEventHandler func(ctx context.Context, msg models.TripEventMessage) error

// ConsumeTripEvents слушает trip.# события и передаёт их в обработчик fn, пока ctx жив.
func (b *TripBroker) ConsumeTripEvents(ctx context.Context, fn TripEventHandler) error {
	const op = "TripBroker.ConsumeTripEvents"
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_trip_events")
	queue := relayQueuePrefix + b.instanceID

	// Основной цикл потребителя
	for {
		if ctx.Err() != nil {
			b.l.Debug(ctx, "consume trip events stopped by context")
			return nil
		}

		msgs, err := b.subscribe(ctx, queue)
		if err != nil {
			b.l.Error(ctx, "subscribe failed", err, "op", op)
			if !sleepCtx(ctx, 2*time.Second) {
				return nil
			}
			continue
		}

		b.l.Info(ctx, "start consuming trip events", "queue", queue)

		// Цикл чтения сообщений
	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				b.l.Info(ctx, "trip event consumer shutting down", "op", op)
				return nil

			case msg, ok := <-msgs:
				if !ok {
					b.l.Warn(ctx, "message channel closed, reconnecting...", "op", op)
					break consumeLoop
				}
				b.handleMessage(ctx, fn, msg)
			}
		}
	}
}

func (b *TripBroker) subscribe(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	if err := b.client.EnsureConnection(ctx); err != nil {
		return nil, err
	}
	ch, err := b.client.Ch()
	if err != nil {
		return nil, err
	}

	// Гарантируем наличие exchange
	if err := b.declareExchange(ch); err != nil {
		return nil, fmt.Errorf("declare exchange failed: %w", err)
	}

	// очередь живёт, пока живёт инстанс
	q, err := ch.QueueDeclare(queue, false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue failed: %w", err)
	}
	if err := ch.QueueBind(q.Name, relayBindingKey, b.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue failed: %w", err)
	}

	return ch.Consume(q.Name, "", false, true, false, false, nil)
}

// handleMessage keeps delivery order: events of a trip are relayed in the order they were published.
func (b *TripBroker) handleMessage(ctx context.Context, fn TripEventHandler, d amqp.Delivery) {
	var msg models.TripEventMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		b.l.Error(ctx, "failed to unmarshal trip event", err)
		_ = d.Nack(false, false)
		metrics.RecordRabbitMQConsume(b.exchange, d.RoutingKey, err)
		return
	}

	// добавляем в контекст переменные для логирования и трассировки
	ctxx := wrap.WithRequestID(wrap.WithTripID(ctx, msg.TripID.String()), d.CorrelationId)

	err := fn(ctxx, msg)
	metrics.RecordRabbitMQConsume(b.exchange, d.RoutingKey, err)
	if err != nil {
		b.l.Error(wrap.ErrorCtx(ctxx, err), "failed to handle trip event", err)

		// если ошибка восстановимая, повторно помещаем в очередь
		_ = d.Nack(false, isRecoverableError(err))
		return
	}

	if err := d.Ack(false); err != nil {
		b.l.Warn(ctxx, "ack failed", "error", err.Error())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
