package memory

import (
	"sync"

	"live-quiz-service/internal/app"
)

// RoomStore is an in-memory implementation of app.RoomStore.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
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

// Len reports how many rooms are held.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
