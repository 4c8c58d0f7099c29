package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Rooms stay in a local map; their state and broadcast order live in process.
//   - Redis holds a liveness marker per room so operators and other instances can
//     see which codes are live. Markers expire on their own if the process dies.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) GetOrCreate(code string, create func() *app.Room) (*app.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok {
		return room, false
	}
	room := create()
	s.rooms[code] = room
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(code), "1", s.ttl).Err()
	return room, true
}

func (s *RoomStore) Get(code string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) Delete(code string, room *app.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.rooms[code]; !ok || current != room {
		return false
	}
	delete(s.rooms, code)
	_ = s.client.Del(context.Background(), s.key(code)).Err()
	return true
}

// Range visits a snapshot of the rooms, so fn may call back into the store.
func (s *RoomStore) Range(fn func(code string, room *app.Room) bool) {
	s.mu.RLock()
	snapshot := make(map[string]*app.Room, len(s.rooms))
	for code, room := range s.rooms {
		snapshot[code] = room
	}
	s.mu.RUnlock()

	for code, room := range snapshot {
		if !fn(code, room) {
			return
		}
	}
}

// Refresh extends the liveness markers of every held room.
func (s *RoomStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	if len(codes) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, code := range codes {
		pipe.Set(ctx, s.key(code), "1", s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Live reports whether any instance holds a marker for code.
func (s *RoomStore) Live(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RoomStore) key(code string) string {
	return "live:room:" + code
}
