package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func TestNotifierRelaysToTeacher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type delivery struct {
		teacherID string
		body      []byte
	}
	got := make(chan delivery, 1)
	go func() {
		_ = Relay(ctx, client, zap.NewNop(), func(teacherID string, body []byte) {
			got <- delivery{teacherID: teacherID, body: body}
		})
	}()

	notifier := NewNotifier(client, zap.NewNop(), 8)
	go func() { _ = notifier.Run(ctx) }()

	// The subscription is asynchronous; keep notifying until the relay sees one.
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case d := <-got:
			if d.teacherID != "t-1" {
				t.Fatalf("unexpected teacher %q", d.teacherID)
			}
			var n Notification
			if err := json.Unmarshal(d.body, &n); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n.Type != "live:session-count" || string(n.Payload) != `{"participantsCount":2}` {
				t.Fatalf("unexpected notification %+v", n)
			}
			return
		case <-ticker.C:
			notifier.NotifyTeacher(ctx, "t-1", "live:session-count", map[string]int{"participantsCount": 2})
		case <-deadline:
			t.Fatalf("timed out waiting for relayed notification")
		}
	}
}
