// Package wshandler serves the live tracking channel endpoint of the coordinating server.
package wshandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
	ws "github.com/Temutjin2k/ride-tracking-system/pkg/wsHub"
)

type Authenticator interface {
	Validate(ctx context.Context, token string) (*models.User, error)
}

type TripGetter interface {
	Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
}

type PositionUpdater interface {
	UpdatePosition(ctx context.Context, actor *models.User, tripID uuid.UUID, pos models.FulfillerPosition) error
}

// Publisher carries chat messages to every server instance.
type Publisher interface {
	PublishTripEvent(ctx context.Context, msg models.TripEventMessage) error
}

type Handler struct {
	hub       *ws.ConnectionHub
	auth      Authenticator
	trips     TripGetter
	positions PositionUpdater
	pub       Publisher
	upgrader  websocket.Upgrader
	l         logger.Logger

	now func() time.Time
}

func New(hub *ws.ConnectionHub, auth Authenticator, trips TripGetter, positions PositionUpdater, pub Publisher, l logger.Logger) *Handler {
	return &Handler{
		hub:       hub,
		auth:      auth,
		trips:     trips,
		positions: positions,
		pub:       pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// клиенты не браузеры, токен проверяется до апгрейда
			CheckOrigin: func(*http.Request) bool { return true },
		},
		l:   l,
		now: time.Now,
	}
}

func tokenFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// HandleWS godoc
// @Summary      Live tracking channel
// @Description  Websocket; the bearer token goes in the Authorization header or the token query parameter
// @Tags         Tracking
// @Param        token  query  string  false  "access token"
// @Success      101
// @Failure      401  {object}  map[string]any
// @Router       /ws [get]
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ws_connect")

	token := tokenFrom(r)
	if token == "" {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	user, err := h.auth.Validate(ctx, token)
	if err != nil {
		h.l.Warn(ctx, "ws authentication failed", "error", err.Error())
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	ctx = wrap.WithUserID(ctx, user.ID.String())

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn(ctx, "ws upgrade failed", "error", err.Error())
		return
	}

	// соединение живёт дольше запроса
	connCtx := context.WithoutCancel(ctx)
	conn := ws.NewConn(connCtx, user.ID, raw)
	if err := h.hub.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register connection", err)
		conn.Close()
		return
	}

	gauge := metrics.WebSocketConnectionsGauge.WithLabelValues(user.Role.String())
	gauge.Inc()
	defer gauge.Dec()
	defer h.hub.Remove(conn)

	h.l.Info(ctx, "ws client connected", "role", user.Role.String())

	err = conn.Run(func(data []byte) error {
		h.handleMessage(wrap.WithAction(connCtx, "ws_message"), user, conn, data)
		return nil
	})
	if err != nil && !isNormalClose(err) {
		h.l.Debug(ctx, "ws client dropped", "error", err.Error())
		return
	}
	h.l.Info(ctx, "ws client disconnected")
}

func (h *Handler) handleMessage(ctx context.Context, user *models.User, conn *ws.Conn, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		errorResponse(conn, "", "malformed envelope")
		return
	}

	var err error
	switch env.Event {
	case types.EventJoinTripRoom:
		err = h.join(ctx, user, env)
	case types.EventLeaveTripRoom:
		err = h.leave(user, env)
	case types.EventPositionUpdate:
		err = h.position(ctx, user, env)
	case types.EventChatMessage:
		err = h.chat(ctx, user, env)
	default:
		err = errors.New("unsupported event " + env.Event.String())
	}

	if err != nil {
		h.l.Debug(ctx, "ws event rejected", "event", env.Event.String(), "error", err.Error())
		if sendErr := errorResponse(conn, env.TripID, err.Error()); sendErr != nil {
			h.l.Debug(ctx, "failed to send ws error", "error", sendErr.Error())
		}
	}
}

// roomOf takes the trip id from the envelope, or from a payload that carries trip_id.
func roomOf(env models.Envelope) (uuid.UUID, error) {
	if env.TripID != "" {
		return uuid.Parse(env.TripID)
	}
	var p models.JoinRoomPayload
	if err := env.Decode(&p); err != nil {
		return uuid.Nil, err
	}
	if p.TripID == uuid.Nil {
		return uuid.Nil, errors.New("trip_id is required")
	}
	return p.TripID, nil
}

func (h *Handler) join(ctx context.Context, user *models.User, env models.Envelope) error {
	tripID, err := roomOf(env)
	if err != nil {
		return err
	}

	trip, err := h.trips.Get(ctx, tripID)
	if err != nil {
		if errors.Is(err, types.ErrTripNotFound) {
			return types.ErrTripNotFound
		}
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to load trip for room", err)
		return errors.New("failed to join trip room")
	}

	participant := user.Role == types.RoleAdmin || trip.RequesterID == user.ID ||
		(trip.FulfillerID != nil && *trip.FulfillerID == user.ID)
	if !participant {
		return types.ErrForbidden
	}

	h.hub.Join(tripID.String(), user.ID)
	h.l.Debug(wrap.WithTripID(ctx, tripID.String()), "joined trip room")
	return nil
}

func (h *Handler) leave(user *models.User, env models.Envelope) error {
	tripID, err := roomOf(env)
	if err != nil {
		return err
	}
	h.hub.Leave(tripID.String(), user.ID)
	return nil
}

func (h *Handler) position(ctx context.Context, user *models.User, env models.Envelope) error {
	if user.Role != types.RoleFulfiller {
		return types.ErrForbidden
	}

	var p models.PositionUpdatePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.TripID == uuid.Nil && env.TripID != "" {
		id, err := uuid.Parse(env.TripID)
		if err != nil {
			return err
		}
		p.TripID = id
	}
	return h.positions.UpdatePosition(ctx, user, p.TripID, p.Position)
}

func (h *Handler) chat(ctx context.Context, user *models.User, env models.Envelope) error {
	var p models.ChatMessagePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.TripID == uuid.Nil {
		id, err := roomOf(env)
		if err != nil {
			return err
		}
		p.TripID = id
	}
	if !h.hub.InRoom(p.TripID.String(), user.ID) {
		return errors.New("join the trip room first")
	}

	p.From = user.ID
	p.SentAt = h.now()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return h.pub.PublishTripEvent(ctx, models.TripEventMessage{
		Event:     types.EventChatMessage,
		TripID:    p.TripID,
		Payload:   raw,
		Timestamp: p.SentAt,
	})
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
}
