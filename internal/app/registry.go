package app

import (
	"fmt"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connection is the registry record of one joined transport session.
type Connection struct {
	ID   core.ConnectionID
	Room domain.RoomID
	domain.Member
}

// DTO is the public projection broadcast in rosters.
func (c Connection) DTO() core.MemberDTO {
	return core.MemberDTO{
		ID:            c.ID,
		UserID:        c.User.ID,
		Username:      c.User.Username,
		IsMuted:       c.Voice.Muted,
		IsVolumeMuted: c.Voice.VolumeMuted,
		IsSpeaking:    c.Voice.Speaking,
		VoiceLevel:    c.Voice.Level,
	}
}

// Registry holds live connections and a reverse index room -> members.
// Every mutator that touches Room updates both in the same call, so the two
// views never diverge.
//
// Registry is not safe for concurrent use. It is owned by the orchestrator
// loop, which serializes all access.
type Registry struct {
	conns  map[core.ConnectionID]*Connection
	byRoom map[domain.RoomID]map[core.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnectionID]*Connection),
		byRoom: make(map[domain.RoomID]map[core.ConnectionID]struct{}),
	}
}

// Register records id with the given identity. Re-registering overwrites the
// identity and keeps room and voice state. An empty id or username is a
// silent no-op; callers validate upstream.
func (r *Registry) Register(id core.ConnectionID, user domain.User) {
	if id == "" || user.Username == "" {
		return
	}
	if c, ok := r.conns[id]; ok {
		c.User = user
		log.Debug().Str("module", "app.registry").Str("sid", string(id)).Str("username", user.Username).Msg("updated identity")
		return
	}
	r.conns[id] = &Connection{ID: id, Member: domain.Member{User: user}}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("username", user.Username).Msg("registered connection")
}

// SetRoom moves id into room and returns the room it was in before.
// An empty room detaches the connection from any room.
func (r *Registry) SetRoom(id core.ConnectionID, room domain.RoomID) (domain.RoomID, error) {
	c, ok := r.conns[id]
	if !ok {
		return "", fmt.Errorf("set room %s: %w", id, core.ErrUnknownConnection)
	}
	prev := c.Room
	if prev == room {
		return prev, nil
	}
	r.unindex(id, prev)
	c.Room = room
	if room != "" {
		members, ok := r.byRoom[room]
		if !ok {
			members = make(map[core.ConnectionID]struct{})
			r.byRoom[room] = members
		}
		members[id] = struct{}{}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("from", string(prev)).Str("room", string(room)).Msg("updated room")
	return prev, nil
}

// UpdateVoiceState merges the supplied fields and returns the updated record.
func (r *Registry) UpdateVoiceState(id core.ConnectionID, patch domain.VoiceStatePatch) (Connection, error) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, fmt.Errorf("update voice state %s: %w", id, core.ErrUnknownConnection)
	}
	c.Voice = c.Voice.Apply(patch)
	return *c, nil
}

// Remove deletes id and returns the prior record. The second call for the
// same id returns false, which lets callers run cleanup exactly once.
func (r *Registry) Remove(id core.ConnectionID) (Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, id)
	r.unindex(id, c.Room)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(c.Room)).Msg("removed connection")
	return *c, true
}

func (r *Registry) Get(id core.ConnectionID) (Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

func (r *Registry) Len() int { return len(r.conns) }

// MembersOf returns a copy of the ids currently in room.
func (r *Registry) MembersOf(room domain.RoomID) []core.ConnectionID {
	members := r.byRoom[room]
	out := make([]core.ConnectionID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (r *Registry) CountOf(room domain.RoomID) int {
	return len(r.byRoom[room])
}

// Roster materializes the public projection of every member of room.
func (r *Registry) Roster(room domain.RoomID) []core.MemberDTO {
	members := r.byRoom[room]
	out := make([]core.MemberDTO, 0, len(members))
	for id := range members {
		out = append(out, r.conns[id].DTO())
	}
	return out
}

func (r *Registry) unindex(id core.ConnectionID, room domain.RoomID) {
	if room == "" {
		return
	}
	members, ok := r.byRoom[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.byRoom, room)
	}
}
