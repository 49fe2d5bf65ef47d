package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const HelpMessage = `tripsync - trip lifecycle and live tracking

Usage:
  tripsync --mode=<server|fulfiller|requester> [--config-path=config.yaml]

Modes:
  server      REST API, websocket channel, matching and event relay
  fulfiller   headless fulfiller: goes online, accepts offers, drives the trip
  requester   headless requester: creates a trip and follows it to the end

Every config value can be overridden by its environment variable, e.g. DATABASE_HOST.

Flags:
`

func PrintHelp() {
	fmt.Print(HelpMessage)
	pflag.PrintDefaults()
}

// PrintConfig prints the effective configuration with secrets masked.
func PrintConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	b := strings.Builder{}
	fmt.Fprintf(&b, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(&b, "database: %s:%s/%s (user %s, max conns %d)\n",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.User, cfg.Database.MaxConns)
	fmt.Fprintf(&b, "rabbitmq: %s:%s\n", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	fmt.Fprintf(&b, "nats: %s\n", cfg.NATS.URL)
	fmt.Fprintf(&b, "redis: %s db=%d\n", cfg.Redis.GetAddr(), cfg.Redis.DB)
	fmt.Fprintf(&b, "server: port=%s instance=%q\n", cfg.Server.Port, cfg.Server.InstanceID)
	fmt.Fprintf(&b, "auth: ttl=%s secret=%s\n", cfg.Auth.AccessTokenTTL, mask(cfg.Auth.JWTSecret))
	fmt.Fprintf(&b, "directions: %s mode=%s key=%s\n", cfg.Directions.BaseURL, cfg.Directions.TravelMode, mask(cfg.Directions.APIKey))
	fmt.Fprintf(&b, "geocoder: %s key=%s\n", cfg.Geocoder.BaseURL, mask(cfg.Geocoder.APIKey))
	fmt.Fprintf(&b, "tracking: %+v\n", cfg.Tracking)
	fmt.Fprintf(&b, "agent: server=%s user=%q service=%s token=%s\n",
		cfg.Agent.ServerURL, cfg.Agent.UserID, cfg.Agent.ServiceType, mask(cfg.Agent.Token))
	fmt.Fprintf(&b, "log: %s\n", cfg.Log.Level)

	fmt.Fprint(os.Stdout, b.String())
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "***"
}
