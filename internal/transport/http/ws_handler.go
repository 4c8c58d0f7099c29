package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 << 10
)

type WSHandler struct {
	service  *app.LiveService
	hub      *Hub
	auth     *JWTAuth
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the socket endpoint. auth may be nil, in which case connections
// identify themselves only through the identify event.
func NewWSHandler(service *app.LiveService, hub *Hub, auth *JWTAuth, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		auth:    auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live use cases.
// An optional ?token= binds the connection to a verified identity up front.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var caller app.Caller
	if token := r.URL.Query().Get("token"); token != "" && h.auth != nil {
		identity, err := h.auth.Parse(token)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		caller.UserID = identity.UserID
		caller.Role = identity.Role
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	caller.ConnID = uuid.NewString()
	c := h.hub.register(caller.ConnID)
	if caller.UserID != "" {
		h.hub.bind(c, caller.UserID)
	}
	verified := caller.UserID != ""

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("ws write error", zap.String("conn", c.id), zap.Error(err))
				return
			}
		}
		// The hub closed our buffer, so make the reader stop too.
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(caller, app.EventError, "invalid message")
				continue
			}
			break
		}
		wsEventsIn.WithLabelValues(eventLabel(inbound.Type)).Inc()
		caller = h.dispatch(ctx, c, caller, verified, inbound)
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.service.Disconnect(disconnectCtx, caller.ConnID)
	cancel()
	h.hub.unregister(c)
	<-writerDone
}

// dispatch handles one inbound event and returns the possibly updated caller.
func (h *WSHandler) dispatch(ctx context.Context, c *client, caller app.Caller, verified bool, inbound inboundMessage) app.Caller {
	switch inbound.Type {
	case app.EventIdentify:
		var req app.IdentifyRequest
		if !h.decode(caller, inbound, &req) {
			return caller
		}
		identified, err := h.service.Identify(req)
		if err != nil {
			h.fail(caller, app.EventError, err)
			return caller
		}
		if verified && identified.UserID != caller.UserID {
			h.fail(caller, app.EventError, domain.ErrIdentityMismatch)
			return caller
		}
		if verified && caller.Role != "" {
			identified.Role = caller.Role
		}
		identified.ConnID = caller.ConnID
		h.hub.bind(c, identified.UserID)
		return identified

	case app.EventHostGame:
		var req app.HostRequest
		if h.decode(caller, inbound, &req) {
			if _, err := h.service.HostGame(ctx, caller, req); err != nil {
				h.fail(caller, app.EventError, err)
			}
		}

	case app.EventJoinGame:
		var req app.JoinRequest
		if h.decode(caller, inbound, &req) {
			if err := h.service.JoinGame(ctx, caller, req); err != nil {
				h.fail(caller, app.EventJoinError, err)
			}
		}

	case app.EventStartGame:
		var req app.RoomRequest
		if h.decode(caller, inbound, &req) {
			if err := h.service.StartGame(ctx, caller, req); err != nil {
				h.fail(caller, app.EventError, err)
			}
		}

	case app.EventAnswer:
		var req app.AnswerRequest
		if h.decode(caller, inbound, &req) {
			if err := h.service.Answer(ctx, caller, req); err != nil {
				h.fail(caller, app.EventError, err)
			}
		}

	case app.EventFinish:
		var req app.FinishRequest
		if h.decode(caller, inbound, &req) {
			if err := h.service.Finish(ctx, caller, req); err != nil {
				h.fail(caller, app.EventError, err)
			}
		}

	case app.EventEndGame:
		var req app.RoomRequest
		if h.decode(caller, inbound, &req) {
			if err := h.service.EndGame(ctx, caller, req); err != nil {
				h.fail(caller, app.EventError, err)
			}
		}

	default:
		h.reply(caller, app.EventError, "unsupported message type")
	}
	return caller
}

func (h *WSHandler) decode(caller app.Caller, inbound inboundMessage, dst any) bool {
	if len(inbound.Payload) == 0 {
		h.reply(caller, app.EventError, "missing "+inbound.Type+" payload")
		return false
	}
	if err := json.Unmarshal(inbound.Payload, dst); err != nil {
		h.reply(caller, app.EventError, "invalid "+inbound.Type+" payload")
		return false
	}
	return true
}

func (h *WSHandler) fail(caller app.Caller, event string, err error) {
	if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrForbidden) &&
		!errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrStateConflict) {
		h.logger.Error("live event failed", zap.String("conn", caller.ConnID), zap.String("event", event), zap.Error(err))
	}
	h.reply(caller, event, err.Error())
}

func (h *WSHandler) reply(caller app.Caller, event, message string) {
	h.hub.Emit([]string{caller.ConnID}, event, app.ErrorPayload{Message: message})
}

func eventLabel(event string) string {
	switch event {
	case app.EventIdentify, app.EventHostGame, app.EventJoinGame, app.EventStartGame,
		app.EventAnswer, app.EventFinish, app.EventEndGame:
		return event
	}
	return "unknown"
}
