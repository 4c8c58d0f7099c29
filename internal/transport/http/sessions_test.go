package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSessionEndpointsLifecycle(t *testing.T) {
	stack := newTestStack(t)
	teacher := signToken(t, "t-1", domain.RoleTeacher)

	resp := stack.do(t, http.MethodPost, "/api/sessions", teacher, map[string]any{
		"gameCreationId": "quiz-1",
		"classIds":       []string{"class-a"},
		"allowLateJoin":  true,
		"scoring":        map[string]any{"scoringMode": "count"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var session domain.Session
	decode(t, resp, &session)
	if session.Status != domain.StatusLobby || session.Code == "" || session.TeacherID != "t-1" {
		t.Fatalf("unexpected session %+v", session)
	}

	resp = stack.do(t, http.MethodGet, "/api/sessions", teacher, nil)
	var list struct {
		Sessions []domain.Session `json:"sessions"`
	}
	decode(t, resp, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", list)
	}

	other := signToken(t, "t-2", domain.RoleTeacher)
	if resp := stack.do(t, http.MethodGet, "/api/sessions/"+session.ID, other, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign teacher: expected 403, got %d", resp.StatusCode)
	}
	if resp := stack.do(t, http.MethodDelete, "/api/sessions/"+session.ID, teacher, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete before end: expected 409, got %d", resp.StatusCode)
	}

	resp = stack.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/end", teacher, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", resp.StatusCode)
	}
	var ended domain.Session
	decode(t, resp, &ended)
	if ended.Status != domain.StatusEnded || ended.EndedAt == nil {
		t.Fatalf("expected ended session, got %+v", ended)
	}

	resp = stack.do(t, http.MethodGet, "/api/sessions/"+session.ID, teacher, nil)
	var summary app.Summary
	decode(t, resp, &summary)
	if summary.Session.ID != session.ID || len(summary.Participants) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if resp := stack.do(t, http.MethodDelete, "/api/sessions/"+session.ID, teacher, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	if resp := stack.do(t, http.MethodGet, "/api/sessions/"+session.ID, teacher, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionEndpointsRequireTeacherToken(t *testing.T) {
	stack := newTestStack(t)

	resp := stack.do(t, http.MethodGet, "/api/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body errorResponse
	decode(t, resp, &body)
	if body.Error.Code != "UNAUTHORIZED" || body.Error.RequestID == "" {
		t.Fatalf("unexpected error body %+v", body)
	}

	student := signToken(t, "u1", domain.RoleStudent)
	if resp := stack.do(t, http.MethodGet, "/api/sessions", student, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student: expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	stack := newTestStack(t)
	teacher := signToken(t, "t-1", domain.RoleTeacher)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing quiz", map[string]any{}, http.StatusBadRequest},
		{"unknown quiz", map[string]any{"gameCreationId": "nope"}, http.StatusNotFound},
		{"bad scoring mode", map[string]any{"gameCreationId": "quiz-1", "scoring": map[string]any{"scoringMode": "vibes"}}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := stack.do(t, http.MethodPost, "/api/sessions", teacher, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
			resp.Body.Close()
		})
	}
}

func TestHealthz(t *testing.T) {
	stack := newTestStack(t)
	resp, err := http.Get(stack.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func (s *testStack) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
