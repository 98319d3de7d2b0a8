package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

var ErrDuplicateRoom = errors.New("duplicate room id")

// RoomManager is the static room catalog plus the member counts published
// by the presence broadcaster. The catalog never changes after construction;
// counts are guarded so the HTTP layer can read them while the orchestrator
// loop writes them.
type RoomManager struct {
	order []domain.RoomID
	rooms map[domain.RoomID]domain.Room

	mu     sync.RWMutex
	counts map[domain.RoomID]int
}

func NewRoomManager(rooms []domain.Room) (*RoomManager, error) {
	m := &RoomManager{
		order:  make([]domain.RoomID, 0, len(rooms)),
		rooms:  make(map[domain.RoomID]domain.Room, len(rooms)),
		counts: make(map[domain.RoomID]int, len(rooms)),
	}
	for _, room := range rooms {
		if room.ID == "" {
			return nil, fmt.Errorf("room %q: empty id", room.Name)
		}
		if _, ok := m.rooms[room.ID]; ok {
			return nil, fmt.Errorf("room %s: %w", room.ID, ErrDuplicateRoom)
		}
		if room.Name == "" {
			room.Name = domain.RoomName(room.ID)
		}
		m.rooms[room.ID] = room
		m.order = append(m.order, room.ID)
	}
	return m, nil
}

func (m *RoomManager) Get(id domain.RoomID) (domain.Room, bool) {
	room, ok := m.rooms[id]
	return room, ok
}

// SetMemberCount is called by the presence broadcaster only.
func (m *RoomManager) SetMemberCount(id domain.RoomID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == 0 {
		delete(m.counts, id)
		return
	}
	m.counts[id] = n
}

func (m *RoomManager) MemberCount(id domain.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[id]
}

// List returns a snapshot of the catalog in configuration order.
func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.order))
	for _, id := range m.order {
		r := m.rooms[id]
		out = append(out, core.RoomInfo{
			ID:          r.ID,
			Name:        r.Name,
			Kind:        r.Kind,
			MemberCount: m.counts[id],
		})
	}
	return out
}
