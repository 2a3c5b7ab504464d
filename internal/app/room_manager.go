package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type roomEntry struct {
	room    core.RoomService
	created time.Time
}

// RoomManager creates relay rooms on first join and forgets them once the orchestrator stops them.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]roomEntry
	now   func() time.Time
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomName]roomEntry), now: time.Now}
}

func (m *RoomManager) GetOrCreate(name domain.RoomName) core.RoomService {
	if room, ok := m.Get(name); ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rooms[name]; ok {
		return e.room
	}
	e := roomEntry{room: core.NewRoomService(name), created: m.now()}
	m.rooms[name] = e
	return e.room
}

func (m *RoomManager) Get(name domain.RoomName) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[name]
	return e.room, ok
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// List describes every open room, ordered by name.
func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for name, e := range m.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: e.room.MemberCount(), CreatedAt: e.created})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *RoomManager) StopRoom(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
}
