package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub хранит активные WebSocket соединения (одно на пользователя)
// и членство пользователей в комнатах поездок.
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	rooms   map[string]map[uuid.UUID]struct{}
	l       logger.Logger
	mu      sync.RWMutex
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		rooms:   make(map[string]map[uuid.UUID]struct{}),
		l:       l,
	}
}

// Add добавляет новое соединение в хаб.
// Если соединение с этим userID уже существует, оно закрывается, комнаты сохраняются.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	existing, ok := h.clients[newConn.userID]
	h.clients[newConn.userID] = newConn
	h.mu.Unlock()

	if ok && existing != newConn {
		ctx := wrap.WithAction(context.Background(), "add_ws_connection")
		h.l.Warn(ctx, "replacing existing connection", "user_id", existing.userID.String())
		existing.Close()
	}
	return nil
}

// Remove drops conn if it is still the registered connection of its user.
// Room membership is kept so a reconnecting client can rejoin without losing events.
func (h *ConnectionHub) Remove(conn *Conn) {
	h.mu.Lock()
	if current, ok := h.clients[conn.userID]; ok && current == conn {
		delete(h.clients, conn.userID)
	}
	h.mu.Unlock()

	conn.Close()
}

// Delete удаляет и закрывает соединение по ID, вместе с членством в комнатах
func (h *ConnectionHub) Delete(userID uuid.UUID) error {
	h.mu.Lock()
	conn, ok := h.clients[userID]
	if !ok {
		h.mu.Unlock()
		return ErrConnIsNotFound
	}
	delete(h.clients, userID)
	for room, members := range h.rooms {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	return conn.Close()
}

// SendTo отправляет сообщение определённому клиенту по ID
// возвращает ошибку ErrConnIsNotFound, если соединение не найдено
func (h *ConnectionHub) SendTo(id uuid.UUID, msg any) error {
	h.mu.RLock()
	conn, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return ErrConnIsNotFound
	}
	return conn.Send(msg)
}

func (h *ConnectionHub) Join(room string, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		h.rooms[room] = members
	}
	members[userID] = struct{}{}
}

func (h *ConnectionHub) Leave(room string, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// CloseRoom forgets a room, e.g. once its trip is over.
func (h *ConnectionHub) CloseRoom(room string) {
	h.mu.Lock()
	delete(h.rooms, room)
	h.mu.Unlock()
}

func (h *ConnectionHub) InRoom(room string, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][userID]
	return ok
}

// Broadcast sends msg to every connected member of room except `except`.
// It returns how many connections accepted the message.
func (h *ConnectionHub) Broadcast(room string, msg any, except uuid.UUID) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id == except {
			continue
		}
		if conn, ok := h.clients[id]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		if err := conn.Send(msg); err != nil {
			h.l.Debug(wrap.WithAction(context.Background(), "ws_broadcast"), "send failed",
				"user_id", conn.userID.String(), "error", err.Error())
			continue
		}
		sent++
	}
	return sent
}

// Close закрывает каждое websocket соединение
func (h *ConnectionHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	// копируем клиентов под локом
	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clients = make(map[uuid.UUID]*Conn)
	h.rooms = make(map[string]map[uuid.UUID]struct{})
	h.mu.Unlock()

	// закрываем вне локов
	for _, conn := range clients {
		conn.Close()
	}

	h.l.Info(ctx, "all websocket connections closed", "count", len(clients))
}

// Clients возвращает копию списка клиентов
func (h *ConnectionHub) Clients() map[uuid.UUID]*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	copyMap := make(map[uuid.UUID]*Conn, len(h.clients))
	for id, conn := range h.clients {
		copyMap[id] = conn
	}
	return copyMap
}

// GetConn возвращает нужное соединение по UUID
func (h *ConnectionHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}
