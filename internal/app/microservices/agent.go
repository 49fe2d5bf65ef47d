package microservices

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/config"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/channel"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/directions"
	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/tripapi"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/auth"
	dirsvc "github.com/Temutjin2k/ride-tracking-system/internal/service/directions"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/session"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

// agent is what the headless fulfiller and requester share:
// identity, REST client, tracking channel and route resolver.
type agent struct {
	user    *models.User
	api     *tripapi.Client
	channel *channel.WSChannel
	routes  *dirsvc.Resolver

	cfg config.Config
	log logger.Logger
}

func newAgent(ctx context.Context, cfg config.Config, role types.UserRole, log logger.Logger) (*agent, error) {
	const op = "newAgent"

	userID := uuid.New()
	if cfg.Agent.UserID != "" {
		id, err := uuid.Parse(cfg.Agent.UserID)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid agent user id: %w", op, err)
		}
		userID = id
	}
	user := &models.User{ID: userID, Role: role}

	token := cfg.Agent.Token
	if token == "" {
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if token, _, err = tokens.Issue(ctx, user); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	wsURL, err := channelURL(cfg.Agent.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Directions.APIKey == "" {
		log.Warn(ctx, "directions api key is empty, routes will be unavailable")
	}
	provider := directions.NewGoogle(cfg.Directions.BaseURL, cfg.Directions.APIKey, cfg.Directions.TravelMode, cfg.Directions.Timeout)

	return &agent{
		user:    user,
		api:     tripapi.New(cfg.Agent.ServerURL, token, 0),
		channel: channel.New(channel.Config{URL: wsURL, Token: token}, log),
		routes:  dirsvc.NewResolver(provider, cfg.Directions.SimplifyTolerance, log),
		cfg:     cfg,
		log:     log,
	}, nil
}

// channelURL example: http://host:8080 -> ws://host:8080/ws
func channelURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (a *agent) sessionConfig() session.Config {
	t := a.cfg.Tracking
	return session.Config{
		Role:                 a.user.Role,
		ArrivalRadiusM:       t.ArrivalRadiusM,
		NearStepM:            t.NearStepM,
		PendingPollInterval:  t.PendingPollInterval,
		AttachedPollInterval: t.AttachedPollInterval,
		PositionInterval:     t.PositionInterval,
	}
}

func (a *agent) newSession(positions session.PositionSource) *session.Controller {
	return session.New(session.Deps{
		API:       a.api,
		Channel:   a.channel,
		Routes:    a.routes,
		Positions: positions,
		Announcer: logAnnouncer{a.log},
		Logger:    a.log,
	}, a.sessionConfig())
}

func (a *agent) place(lat, lng float64, address string) models.Place {
	return models.Place{Address: address, Coordinates: models.Coordinates{Lat: lat, Lng: lng}}
}

func (a *agent) ctx(ctx context.Context) context.Context {
	return wrap.WithUserID(ctx, a.user.ID.String())
}

// logAnnouncer writes turn instructions to the log.
type logAnnouncer struct {
	l logger.Logger
}

func (a logAnnouncer) Announce(ctx context.Context, step models.Step) {
	a.l.Info(ctx, "next step", "instruction", step.Instruction, "distance_m", step.DistanceM)
}
