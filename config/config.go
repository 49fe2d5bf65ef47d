package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/configparser"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

// Flags
var (
	modeFlag   = pflag.String("mode", "", "application mode: server | fulfiller | requester")
	ConfigPath = pflag.String("config-path", "config.yaml", "path to the config yaml file")
	HelpFlag   = pflag.Bool("help", false, "show help message")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Database   DatabaseConfig
		RabbitMQ   RabbitMQConfig
		NATS       NATSConfig
		Redis      RedisConfig
		Server     ServerConfig
		Auth       Auth
		Directions DirectionsConfig
		Geocoder   GeocoderConfig
		Tracking   TrackingConfig
		Agent      AgentConfig
		Log        LogConfig
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"tripsync_user"`
		Password string `env:"DATABASE_PASSWORD" default:"tripsync_pass"`
		Database string `env:"DATABASE_DATABASE" default:"tripsync_db"`

		MaxConns int32 `env:"DATABASE_MAXCONNS" default:"20"` // максимум открытых соединений
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	NATSConfig struct {
		URL string `env:"NATS_URL" default:"nats://localhost:4222"`
	}

	RedisConfig struct {
		Host     string `env:"REDIS_HOST" default:"localhost"`
		Port     string `env:"REDIS_PORT" default:"6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	ServerConfig struct {
		Port string `env:"SERVER_PORT" default:"8080"`
		// InstanceID names this instance's relay queue, the hostname is used when empty.
		InstanceID string `env:"SERVER_INSTANCE_ID"`
	}

	Auth struct {
		AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" default:"24h"`
		JWTSecret      string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	DirectionsConfig struct {
		BaseURL           string        `env:"DIRECTIONS_BASE_URL" default:"https://maps.googleapis.com/maps/api/directions/json"`
		APIKey            string        `env:"DIRECTIONS_API_KEY"`
		TravelMode        string        `env:"DIRECTIONS_TRAVEL_MODE" default:"driving"`
		Timeout           time.Duration `env:"DIRECTIONS_TIMEOUT" default:"10s"`
		SimplifyTolerance float64       `env:"DIRECTIONS_SIMPLIFY_TOLERANCE" default:"0.0001"`
	}

	// GeocoderConfig fills addresses of places created without one, disabled without a key.
	GeocoderConfig struct {
		BaseURL string        `env:"GEOCODER_BASE_URL" default:"https://us1.locationiq.com"`
		APIKey  string        `env:"GEOCODER_API_KEY"`
		Timeout time.Duration `env:"GEOCODER_TIMEOUT" default:"3s"`
	}

	TrackingConfig struct {
		ArrivalRadiusM float64 `env:"TRACKING_ARRIVAL_RADIUS_M" default:"50"`
		NearStepM      float64 `env:"TRACKING_NEAR_STEP_M" default:"50"`

		RideOfferTimeout     time.Duration `env:"TRACKING_RIDE_OFFER_TIMEOUT" default:"15s"`
		DeliveryOfferTimeout time.Duration `env:"TRACKING_DELIVERY_OFFER_TIMEOUT" default:"60s"`

		PendingPollInterval  time.Duration `env:"TRACKING_PENDING_POLL_INTERVAL" default:"6s"`
		AttachedPollInterval time.Duration `env:"TRACKING_ATTACHED_POLL_INTERVAL" default:"10s"`
		PositionInterval     time.Duration `env:"TRACKING_POSITION_INTERVAL" default:"2s"`

		MatchTimeout   time.Duration `env:"TRACKING_MATCH_TIMEOUT" default:"2m"`
		MatchInterval  time.Duration `env:"TRACKING_MATCH_INTERVAL" default:"5s"`
		SearchRadiusKm float64       `env:"TRACKING_SEARCH_RADIUS_KM" default:"5"`
		MaxCandidates  int           `env:"TRACKING_MAX_CANDIDATES" default:"10"`
	}

	// AgentConfig drives the headless fulfiller and requester modes.
	AgentConfig struct {
		ServerURL string `env:"AGENT_SERVER_URL" default:"http://localhost:8080"`
		// Token is minted from AUTH_JWT_SECRET when empty.
		Token  string `env:"AGENT_TOKEN"`
		UserID string `env:"AGENT_USER_ID"`

		ServiceType string  `env:"AGENT_SERVICE_TYPE" default:"ride"`
		StartLat    float64 `env:"AGENT_START_LAT" default:"43.238949"`
		StartLng    float64 `env:"AGENT_START_LNG" default:"76.889709"`
		PickupLat   float64 `env:"AGENT_PICKUP_LAT" default:"43.238949"`
		PickupLng   float64 `env:"AGENT_PICKUP_LNG" default:"76.889709"`
		DropoffLat  float64 `env:"AGENT_DROPOFF_LAT" default:"43.222015"`
		DropoffLng  float64 `env:"AGENT_DROPOFF_LNG" default:"76.851250"`

		SpeedMps    float64       `env:"AGENT_SPEED_MPS" default:"11"`
		AcceptDelay time.Duration `env:"AGENT_ACCEPT_DELAY" default:"2s"`
		StopDwell   time.Duration `env:"AGENT_STOP_DWELL" default:"5s"`
		MaxRetries  int           `env:"AGENT_MAX_RETRIES" default:"1"`
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c DatabaseConfig) GetMaxConns() int32 {
	return c.MaxConns
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func (c RedisConfig) GetAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c RedisConfig) GetPassword() string {
	return c.Password
}

func (c RedisConfig) GetDB() int {
	return c.DB
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if !logger.ValidateLogLevel(cfg.Log.Level) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level)
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	mode := types.ServiceMode(*modeFlag)
	switch mode {
	case types.ServerMode, types.FulfillerMode, types.RequesterMode:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	cfg.Mode = mode

	return nil
}
