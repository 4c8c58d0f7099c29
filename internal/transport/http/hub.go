package http

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const sendBuffer = 64

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	id     string
	userID string
	send   chan []byte
	closed bool
}

// Hub tracks live sockets and delivers protocol events to them. Delivery never blocks:
// a client whose buffer is full is disconnected and will rejoin.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	users   map[string]map[string]*client
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		users:   make(map[string]map[string]*client),
	}
}

func (h *Hub) register(id string) *client {
	c := &client{id: id, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	wsConnections.Inc()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	h.unbindLocked(c)
	h.closeLocked(c)
	wsConnections.Dec()
}

// bind associates c with userID for user-addressed delivery.
func (h *Hub) bind(c *client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(c)
	c.userID = userID
	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[string]*client)
		h.users[userID] = conns
	}
	conns[c.id] = c
}

func (h *Hub) unbindLocked(c *client) {
	if c.userID == "" {
		return
	}
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
}

func (h *Hub) closeLocked(c *client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Emit sends one event to each listed connection.
func (h *Hub) Emit(connIDs []string, event string, payload any) {
	if len(connIDs) == 0 {
		return
	}
	body, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			h.deliverLocked(c, body)
		}
	}
	wsEventsOut.WithLabelValues(event).Add(float64(len(connIDs)))
}

// NotifyTeacher delivers directly to the teacher's sockets on this instance.
func (h *Hub) NotifyTeacher(_ context.Context, teacherID, event string, payload any) {
	body, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode notification", zap.String("event", event), zap.Error(err))
		return
	}
	h.DeliverToUser(teacherID, body)
}

// DeliverToUser forwards an already encoded message to every socket bound to userID.
func (h *Hub) DeliverToUser(userID string, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.users[userID] {
		h.deliverLocked(c, body)
	}
}

func (h *Hub) deliverLocked(c *client, body []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- body:
	default:
		h.logger.Warn("slow client disconnected", zap.String("conn", c.id), zap.String("user_id", c.userID))
		h.closeLocked(c)
	}
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundMessage{Type: event, Payload: payload})
}
