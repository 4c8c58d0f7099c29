package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/codegen"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

const testSecret = "test-secret"

type testStack struct {
	server     *httptest.Server
	sessions   *memory.SessionRepository
	enrollment *memory.Enrollment
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zap.NewNop()
	sessions := memory.NewSessionRepository()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	enrollment := memory.NewEnrollment()
	hub := NewHub(logger)

	writes := app.NewSynchronizer(sessions, logger, app.SyncOptions{Workers: 2, InitialBackoff: time.Millisecond})
	writes.Start(context.Background())
	t.Cleanup(writes.Stop)

	lifecycle := app.NewLifecycle(sessions, writes)
	registry := app.NewRegistry(app.RegistryDeps{
		Store:      memory.NewRoomStore(),
		Lifecycle:  lifecycle,
		Writes:     writes,
		Enrollment: enrollment,
		Emitter:    hub,
		Notifier:   hub,
		Logger:     logger,
	})
	codes := codegen.NewGenerator(registry.CodeTaken(sessions))
	live := app.NewLiveService(registry, sessions, quizzes, codes, logger)
	sessionService := app.NewSessionService(sessions, quizzes, registry, lifecycle, codes)

	auth := NewJWTAuth(testSecret)
	router := NewRouter(NewWSHandler(live, hub, auth, logger), NewSessionHandler(sessionService, logger), auth, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testStack{server: server, sessions: sessions, enrollment: enrollment}
}

func (s *testStack) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + s.server.URL[len("http"):] + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketLiveGameFlow(t *testing.T) {
	stack := newTestStack(t)

	host := stack.dial(t, "")
	send(t, host, app.EventIdentify, map[string]any{"userId": "t-1", "role": "teacher"})
	send(t, host, app.EventHostGame, map[string]any{"gameCreationId": "quiz-1"})
	_, created := readNext(host, t, app.EventRoomCreated)
	code, _ := created["code"].(string)
	if len(code) != codegen.Length {
		t.Fatalf("expected generated code, got %v", created)
	}

	student := stack.dial(t, "")
	send(t, student, app.EventIdentify, map[string]any{"userId": "u1", "role": "student"})
	send(t, student, app.EventJoinGame, map[string]any{"roomCode": code, "playerName": "Ann", "userId": "u1"})
	readNext(student, t, app.EventJoinSuccess)
	readNext(student, t, app.EventScoreboard)

	_, joined := readNext(host, t, app.EventPlayerJoined)
	if players, _ := joined["players"].([]any); len(players) != 1 {
		t.Fatalf("expected one player, got %v", joined)
	}

	send(t, host, app.EventStartGame, map[string]any{"roomCode": code})
	_, started := readNext(student, t, app.EventGameStarted)
	if started["gameCreationId"] != "quiz-1" {
		t.Fatalf("unexpected game-started payload %v", started)
	}

	send(t, student, app.EventAnswer, map[string]any{"roomCode": code, "userId": "u1", "correct": true, "deltaMs": 1200})
	_, board := readNext(student, t, app.EventScoreboard)
	ranks, _ := board["ranks"].([]any)
	if len(ranks) != 1 {
		t.Fatalf("expected one rank, got %v", board)
	}
	if first := ranks[0].(map[string]any); first["score"] != float64(1) || first["effectiveTimeMs"] != float64(1200) {
		t.Fatalf("unexpected rank %v", first)
	}

	send(t, student, app.EventFinish, map[string]any{"roomCode": code, "userId": "u1", "totalTimeMs": 5000})
	readNext(student, t, app.EventScoreboard)
	_, ended := readNext(student, t, app.EventGameEnded)
	if ended["roomCode"] != code {
		t.Fatalf("unexpected game-ended payload %v", ended)
	}
}

func TestWebSocketJoinUnknownRoom(t *testing.T) {
	stack := newTestStack(t)
	student := stack.dial(t, "")

	send(t, student, app.EventJoinGame, map[string]any{"roomCode": "NOPE2345", "playerName": "Ann", "userId": "u1"})
	_, payload := readNext(student, t, app.EventJoinError)
	if payload["message"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestWebSocketRejectsAnswersForAnotherUser(t *testing.T) {
	stack := newTestStack(t)

	host := stack.dial(t, "")
	send(t, host, app.EventHostGame, map[string]any{"code": "ROOM2345", "gameCreationId": "quiz-1"})
	readNext(host, t, app.EventRoomCreated)

	student := stack.dial(t, "?token="+signToken(t, "u1", domain.RoleStudent))
	send(t, student, app.EventJoinGame, map[string]any{"roomCode": "ROOM2345", "playerName": "Ann", "userId": "u1"})
	readNext(student, t, app.EventJoinSuccess)
	readNext(student, t, app.EventScoreboard)

	send(t, student, app.EventAnswer, map[string]any{"roomCode": "ROOM2345", "userId": "u2", "correct": true})
	readNext(student, t, app.EventError)
}

func TestWebSocketUnsupportedMessage(t *testing.T) {
	stack := newTestStack(t)
	conn := stack.dial(t, "")
	send(t, conn, "dance", map[string]any{})
	_, payload := readNext(conn, t, app.EventError)
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error %v", payload)
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": event, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readNext reads until a message of type expect arrives, skipping unrelated broadcasts.
func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg.Type, msg.Payload
		}
	}
	t.Fatalf("expected message %s", expect)
	return "", nil
}

func signToken(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func sampleQuizzes() map[string]domain.QuizContent {
	return map[string]domain.QuizContent{
		"quiz-1": {ID: "quiz-1", Title: "Fractions", TeacherID: "t-1", GameType: "quiz"},
	}
}
