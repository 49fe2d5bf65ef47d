package microservices

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/Temutjin2k/ride-tracking-system/config"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/handler"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/server"
	wshandler "github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/ws"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/locationIQ"
	natsadapter "github.com/Temutjin2k/ride-tracking-system/internal/adapter/nats"
	repo "github.com/Temutjin2k/ride-tracking-system/internal/adapter/postgres"
	rabbitadapter "github.com/Temutjin2k/ride-tracking-system/internal/adapter/rabbit"
	redisadapter "github.com/Temutjin2k/ride-tracking-system/internal/adapter/redis"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/auth"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/calculator"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/fleet"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/relay"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/trip"
	"github.com/Temutjin2k/ride-tracking-system/migrations"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/postgres"
	"github.com/Temutjin2k/ride-tracking-system/pkg/rabbit"
	"github.com/Temutjin2k/ride-tracking-system/pkg/redis"
	"github.com/Temutjin2k/ride-tracking-system/pkg/trm"
	ws "github.com/Temutjin2k/ride-tracking-system/pkg/wsHub"
)

// Server is the coordinating instance: REST API, tracking channel, matching and relay.
type Server struct {
	postgresDB *postgres.PostgreDB
	redis      *goredis.Client
	rabbit     *rabbit.RabbitMQ
	positions  *natsadapter.PositionBus
	hub        *ws.ConnectionHub

	trips      *trip.Service
	broker     *rabbitadapter.TripBroker
	relay      *relay.Relay
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewServer(ctx context.Context, cfg config.Config, log logger.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			s.close(ctx)
		}
	}()

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	ctx = wrap.WithAction(ctx, "server_init")

	var err error
	s.postgresDB, err = postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}

	version, err := postgres.Migrate(cfg.Database.GetDSN(), migrations.FS, ".")
	if err != nil {
		log.Error(ctx, "Failed to apply migrations", err)
		return nil, err
	}
	log.Info(ctx, "schema is up to date", "version", version)

	s.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error(ctx, "Failed to connect to redis", err)
		return nil, err
	}

	s.rabbit, err = rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "Failed to connect to rabbitmq", err)
		return nil, err
	}

	s.positions, err = natsadapter.NewPositionBus(cfg.NATS.URL, "tripsync-"+instanceID, log)
	if err != nil {
		log.Error(ctx, "Failed to connect to nats", err)
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, log)
	if err != nil {
		return nil, err
	}

	// repositories
	tripRepo := repo.NewTripRepo(s.postgresDB.Pool)
	eventRepo := repo.NewTripEventRepo(s.postgresDB.Pool)
	index := redisadapter.NewFulfillerIndex(s.redis)

	var geocoder trip.Geocoder
	if cfg.Geocoder.APIKey != "" {
		geocoder = locationIQ.New(cfg.Geocoder.BaseURL, cfg.Geocoder.APIKey, cfg.Geocoder.Timeout)
	}

	s.hub = ws.NewConnHub(log)
	s.broker = rabbitadapter.NewTripBroker(s.rabbit, instanceID, log)
	s.relay = relay.New(s.hub, s.broker, log)

	s.trips = trip.NewService(
		trip.Repos{Trips: tripRepo, Events: eventRepo},
		trip.Infra{
			Trm:       trm.New(s.postgresDB.Pool),
			Publisher: s.broker,
			Index:     index,
			Sender:    s.relay,
			Geocoder:  geocoder,
		},
		calculator.New(),
		trip.Config{
			MatchTimeout:         cfg.Tracking.MatchTimeout,
			MatchInterval:        cfg.Tracking.MatchInterval,
			SearchRadiusKm:       cfg.Tracking.SearchRadiusKm,
			MaxCandidates:        cfg.Tracking.MaxCandidates,
			RideOfferTimeout:     cfg.Tracking.RideOfferTimeout,
			DeliveryOfferTimeout: cfg.Tracking.DeliveryOfferTimeout,
		},
		log,
	)
	fleetService := fleet.NewService(index, tripRepo, s.positions, log)

	s.httpServer, err = server.New(cfg.Server.Port, server.Deps{
		Trips:     s.trips,
		Fleet:     fleetService,
		Auth:      tokens,
		WebSocket: wshandler.New(s.hub, tokens, tripRepo, fleetService, s.broker, log),
		HealthDeps: map[string]handler.Checker{
			"postgres": s.postgresDB.Pool.Ping,
			"redis":    func(ctx context.Context) error { return s.redis.Ping(ctx).Err() },
			"rabbitmq": func(context.Context) error {
				if s.rabbit.IsConnectionClosed() {
					return errors.New("rabbitmq connection is closed")
				}
				return nil
			},
			"nats": s.positions.Healthy,
		},
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	ok = true
	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(context.WithoutCancel(ctx))
		s.log.Info(context.WithoutCancel(ctx), "server closed")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.broker.ConsumeTripEvents(gctx, s.relay.HandleTripEvent)
	})
	g.Go(func() error {
		return s.positions.SubscribePositions(gctx, s.relay.HandlePosition)
	})
	g.Go(func() error {
		select {
		case err := <-errCh:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	s.log.Info(ctx, "server has been started")

	err := g.Wait()
	if ctx.Err() != nil {
		s.log.Info(context.WithoutCancel(ctx), "shuting down application")
	}
	return err
}

func (s *Server) close(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
	if s.trips != nil {
		s.trips.Close()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.positions != nil {
		s.positions.Close()
	}
	if s.rabbit != nil {
		if err := s.rabbit.Close(ctx); err != nil {
			s.log.Warn(ctx, "Failed to close rabbitmq", "error", err.Error())
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.postgresDB != nil {
		s.postgresDB.Close()
	}
}
