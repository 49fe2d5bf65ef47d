package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

type testMsg struct {
	Text string `json:"text"`
}

// startServer registers every upgraded connection in the hub under the id from ?user=.
func startServer(t *testing.T, hub *ConnectionHub, inbound chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(context.Background(), id, raw)
		if err := hub.Add(conn); err != nil {
			t.Errorf("add: %v", err)
			return
		}
		defer hub.Remove(conn)

		conn.Run(func(data []byte) error {
			if inbound != nil {
				inbound <- string(data)
			}
			return nil
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, id uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + id.String()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitClients(t *testing.T, hub *ConnectionHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Clients()) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", n, len(hub.Clients()))
}

func readMsg(t *testing.T, c *websocket.Conn) testMsg {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m testMsg
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func newHub() *ConnectionHub {
	return NewConnHub(logger.New(io.Discard, "test", logger.LevelError))
}

func TestSendTo(t *testing.T) {
	hub := newHub()
	srv := startServer(t, hub, nil)

	id := uuid.New()
	c := dial(t, srv, id)
	waitClients(t, hub, 1)

	if err := hub.SendTo(id, testMsg{Text: "hello"}); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if got := readMsg(t, c); got.Text != "hello" {
		t.Fatalf("unexpected message %+v", got)
	}

	if err := hub.SendTo(uuid.New(), testMsg{}); err != ErrConnIsNotFound {
		t.Fatalf("expected ErrConnIsNotFound, got %v", err)
	}
}

func TestBroadcastSkipsSenderAndStrangers(t *testing.T) {
	hub := newHub()
	srv := startServer(t, hub, nil)

	requester, fulfiller, stranger := uuid.New(), uuid.New(), uuid.New()
	rc := dial(t, srv, requester)
	fc := dial(t, srv, fulfiller)
	sc := dial(t, srv, stranger)
	waitClients(t, hub, 3)

	hub.Join("trip-1", requester)
	hub.Join("trip-1", fulfiller)

	if n := hub.Broadcast("trip-1", testMsg{Text: "pos"}, fulfiller); n != 1 {
		t.Fatalf("expected 1 recipient, got %d", n)
	}
	if got := readMsg(t, rc); got.Text != "pos" {
		t.Fatalf("requester got %+v", got)
	}

	// fulfiller and stranger must not receive anything
	for _, c := range []*websocket.Conn{fc, sc} {
		c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, _, err := c.ReadMessage(); err == nil {
			t.Fatalf("unexpected delivery")
		}
	}
}

func TestRoomMembershipSurvivesReconnect(t *testing.T) {
	hub := newHub()
	srv := startServer(t, hub, nil)

	id := uuid.New()
	first := dial(t, srv, id)
	waitClients(t, hub, 1)
	hub.Join("trip-2", id)

	first.Close()
	waitClients(t, hub, 0)

	if !hub.InRoom("trip-2", id) {
		t.Fatalf("membership lost on disconnect")
	}

	second := dial(t, srv, id)
	waitClients(t, hub, 1)

	if n := hub.Broadcast("trip-2", testMsg{Text: "again"}, uuid.Nil); n != 1 {
		t.Fatalf("expected delivery after reconnect, got %d", n)
	}
	if got := readMsg(t, second); got.Text != "again" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestLeaveAndDelete(t *testing.T) {
	hub := newHub()
	srv := startServer(t, hub, nil)

	a, b := uuid.New(), uuid.New()
	dial(t, srv, a)
	dial(t, srv, b)
	waitClients(t, hub, 2)

	hub.Join("trip-3", a)
	hub.Join("trip-3", b)
	hub.Leave("trip-3", a)
	if hub.InRoom("trip-3", a) || !hub.InRoom("trip-3", b) {
		t.Fatalf("leave must only drop a")
	}

	if err := hub.Delete(b); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if hub.InRoom("trip-3", b) {
		t.Fatalf("delete must drop memberships")
	}
	if err := hub.Delete(b); err != ErrConnIsNotFound {
		t.Fatalf("second delete: %v", err)
	}
}

func TestInboundMessagesReachHandler(t *testing.T) {
	hub := newHub()
	inbound := make(chan string, 1)
	srv := startServer(t, hub, inbound)

	c := dial(t, srv, uuid.New())
	payload, _ := json.Marshal(testMsg{Text: "ping"})
	if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-inbound:
		if got != string(payload) {
			t.Fatalf("unexpected inbound %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not called")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	hub := newHub()
	srv := startServer(t, hub, nil)

	id := uuid.New()
	dial(t, srv, id)
	waitClients(t, hub, 1)

	conn, err := hub.GetConn(id)
	if err != nil {
		t.Fatalf("GetConn: %v", err)
	}
	conn.Close()
	if err := conn.Send(testMsg{}); err != ErrConnClosed {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestAddNil(t *testing.T) {
	if err := newHub().Add(nil); err != ErrEmptyConn {
		t.Fatalf("expected ErrEmptyConn, got %v", err)
	}
}
