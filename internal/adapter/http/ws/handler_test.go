package wshandler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	ws "github.com/Temutjin2k/ride-tracking-system/pkg/wsHub"
)

type fakeAuth map[string]*models.User

func (f fakeAuth) Validate(_ context.Context, token string) (*models.User, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

type fakeTrips map[uuid.UUID]*models.Trip

func (f fakeTrips) Get(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, types.ErrTripNotFound
}

type recorder struct {
	mu        sync.Mutex
	positions []models.PositionUpdatePayload
	chats     []models.TripEventMessage
}

func (r *recorder) UpdatePosition(_ context.Context, actor *models.User, tripID uuid.UUID, pos models.FulfillerPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, models.PositionUpdatePayload{TripID: tripID, FulfillerID: actor.ID, Position: pos})
	return nil
}

func (r *recorder) PublishTripEvent(_ context.Context, msg models.TripEventMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, msg)
	return nil
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions), len(r.chats)
}

type fixture struct {
	srv       *httptest.Server
	hub       *ws.ConnectionHub
	rec       *recorder
	trip      *models.Trip
	requester *models.User
	fulfiller *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	l := logger.New(io.Discard, "test", logger.LevelError)

	f := &fixture{
		hub:       ws.NewConnHub(l),
		rec:       &recorder{},
		requester: &models.User{ID: uuid.New(), Role: types.RoleRequester},
		fulfiller: &models.User{ID: uuid.New(), Role: types.RoleFulfiller},
	}
	f.trip = &models.Trip{ID: uuid.New(), Status: types.StatusAccepted, RequesterID: f.requester.ID, FulfillerID: &f.fulfiller.ID}

	auth := fakeAuth{
		"requester": f.requester,
		"fulfiller": f.fulfiller,
		"stranger":  {ID: uuid.New(), Role: types.RoleRequester},
	}
	h := New(f.hub, auth, fakeTrips{f.trip.ID: f.trip}, f.rec, f.rec, l)

	f.srv = httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		f.hub.Close()
		f.srv.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event types.ChannelEvent, tripID string, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(event, tripID, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := c.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) models.Envelope {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	if err := c.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestUnauthorizedDial(t *testing.T) {
	f := setup(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer nobody")

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http"), header)
	if err == nil {
		t.Fatalf("dial must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestJoinRoom(t *testing.T) {
	f := setup(t)
	room := f.trip.ID.String()

	c := f.dial(t, "requester")
	send(t, c, types.EventJoinTripRoom, "", models.JoinRoomPayload{TripID: f.trip.ID})
	eventually(t, func() bool { return f.hub.InRoom(room, f.requester.ID) })

	send(t, c, types.EventLeaveTripRoom, room, nil)
	eventually(t, func() bool { return !f.hub.InRoom(room, f.requester.ID) })
}

func TestJoinRoom_Stranger(t *testing.T) {
	f := setup(t)

	c := f.dial(t, "stranger")
	send(t, c, types.EventJoinTripRoom, f.trip.ID.String(), nil)

	env := read(t, c)
	if env.Event != types.EventError {
		t.Fatalf("expected error event, got %s", env.Event)
	}
	var p models.ErrorPayload
	if err := env.Decode(&p); err != nil || !strings.Contains(p.Message, "forbidden") {
		t.Fatalf("unexpected error payload %+v (%v)", p, err)
	}
}

func TestPositionAndChat(t *testing.T) {
	f := setup(t)

	driver := f.dial(t, "fulfiller")
	send(t, driver, types.EventPositionUpdate, f.trip.ID.String(), models.PositionUpdatePayload{
		Position: models.FulfillerPosition{Coordinates: models.Coordinates{Lat: 14.7, Lng: -17.4}},
	})
	eventually(t, func() bool { n, _ := f.rec.counts(); return n == 1 })

	f.rec.mu.Lock()
	got := f.rec.positions[0]
	f.rec.mu.Unlock()
	if got.TripID != f.trip.ID || got.FulfillerID != f.fulfiller.ID {
		t.Fatalf("position not attributed: %+v", got)
	}

	// без комнаты чат запрещён
	send(t, driver, types.EventChatMessage, f.trip.ID.String(), models.ChatMessagePayload{Text: "hi"})
	if env := read(t, driver); env.Event != types.EventError {
		t.Fatalf("chat outside room must fail, got %s", env.Event)
	}

	send(t, driver, types.EventJoinTripRoom, f.trip.ID.String(), nil)
	eventually(t, func() bool { return f.hub.InRoom(f.trip.ID.String(), f.fulfiller.ID) })

	send(t, driver, types.EventChatMessage, f.trip.ID.String(), models.ChatMessagePayload{TripID: f.trip.ID, Text: "on my way"})
	eventually(t, func() bool { _, n := f.rec.counts(); return n == 1 })

	f.rec.mu.Lock()
	msg := f.rec.chats[0]
	f.rec.mu.Unlock()
	var chat models.ChatMessagePayload
	if err := (models.Envelope{Event: msg.Event, Payload: msg.Payload}).Decode(&chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chat.From != f.fulfiller.ID || chat.Text != "on my way" || chat.SentAt.IsZero() {
		t.Fatalf("chat not stamped: %+v", chat)
	}
}

func TestRequesterCannotSendPositions(t *testing.T) {
	f := setup(t)

	c := f.dial(t, "requester")
	send(t, c, types.EventPositionUpdate, f.trip.ID.String(), models.PositionUpdatePayload{})
	if env := read(t, c); env.Event != types.EventError {
		t.Fatalf("expected error event, got %s", env.Event)
	}
	if n, _ := f.rec.counts(); n != 0 {
		t.Fatalf("position must not be forwarded")
	}
}
