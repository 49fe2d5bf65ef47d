package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	TripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trips_total",
			Help: "Trips that reached a status",
		},
		[]string{"service_type", "status"},
	)

	OffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_offers_total",
			Help: "Offers sent to fulfillers by outcome",
		},
		[]string{"outcome"},
	)

	FulfillersOnlineGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fulfillers_online",
			Help: "Fulfillers connected to this instance",
		},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"role"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"exchange", "key", "status"},
	)

	RabbitMQMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_consumed_total",
			Help: "Total number of messages consumed from RabbitMQ",
		},
		[]string{"exchange", "key", "status"},
	)

	NATSPositionsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_positions_published_total",
			Help: "Fulfiller positions fanned out over NATS",
		},
		[]string{"status"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, code).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, code).Observe(duration.Seconds())
}

func RecordTripStatus(serviceType, tripStatus string) {
	TripsTotal.WithLabelValues(serviceType, tripStatus).Inc()
}

// RecordOffer outcome: accepted, rejected, expired, undelivered
func RecordOffer(outcome string) {
	OffersTotal.WithLabelValues(outcome).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(exchange, key string, err error) {
	RabbitMQMessagesPublished.WithLabelValues(exchange, key, status(err)).Inc()
}

// RecordRabbitMQConsume records RabbitMQ consume metrics
func RecordRabbitMQConsume(exchange, key string, err error) {
	RabbitMQMessagesConsumed.WithLabelValues(exchange, key, status(err)).Inc()
}

func RecordNATSPublish(err error) {
	NATSPositionsPublished.WithLabelValues(status(err)).Inc()
}
