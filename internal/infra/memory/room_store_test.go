package memory

import (
	"testing"

	"live-quiz-service/internal/app"
)

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()

	room, created := store.GetOrCreate("ABCD2345", func() *app.Room {
		return app.NewRoom("ABCD2345", "quiz-1", nil)
	})
	if room == nil || !created {
		t.Fatalf("expected new room")
	}
	again, created := store.GetOrCreate("ABCD2345", func() *app.Room {
		t.Fatalf("create must not run for an existing code")
		return nil
	})
	if created || again != room {
		t.Fatalf("expected existing room to be returned")
	}
	if _, ok := store.Get("ABCD2345"); !ok {
		t.Fatalf("expected room present")
	}

	if store.Delete("ABCD2345", app.NewRoom("ABCD2345", "quiz-1", nil)) {
		t.Fatalf("delete must not remove a different room under the same code")
	}
	if !store.Delete("ABCD2345", room) {
		t.Fatalf("expected delete to report removal")
	}
	if _, ok := store.Get("ABCD2345"); ok {
		t.Fatalf("expected room removed")
	}
}

func TestRoomStoreRangeAllowsDeletes(t *testing.T) {
	store := NewRoomStore()
	for _, code := range []string{"AAAA2222", "BBBB3333", "CCCC4444"} {
		code := code
		store.GetOrCreate(code, func() *app.Room { return app.NewRoom(code, "quiz-1", nil) })
	}

	store.Range(func(code string, room *app.Room) bool {
		store.Delete(code, room)
		return true
	})
	if store.Len() != 0 {
		t.Fatalf("expected every room deleted, %d left", store.Len())
	}
}
