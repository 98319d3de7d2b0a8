package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// join registers sid under user and places it in room. A connection already
// in another room is moved: the old room sees it leave first.
func (o *Orchestrator) join(sid core.ConnectionID, roomID domain.RoomID, info *protocol.UserInfo) error {
	if _, ok := o.links[sid]; !ok {
		return fmt.Errorf("join %s: %w", sid, core.ErrUnknownConnection)
	}
	if err := o.validateJoin(roomID, info); err != nil {
		o.replyError(sid, err)
		return err
	}
	user, err := domain.NewUser(info.ID, info.Username)
	if err != nil {
		err = fmt.Errorf("%w: %v", core.ErrMalformedJoin, err)
		o.replyError(sid, err)
		return err
	}

	o.Registry.Register(sid, *user)
	prev, err := o.Registry.SetRoom(sid, roomID)
	if err != nil {
		return err
	}
	if prev != "" && prev != roomID {
		o.forgetPeer(sid)
		o.onMembershipChanged(prev)
		o.broadcastLeft(prev, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("moved out of room")
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("username", user.Username).Msg("joined voice room")
	o.onMembershipChanged(roomID)
	return nil
}

func (o *Orchestrator) validateJoin(roomID domain.RoomID, info *protocol.UserInfo) error {
	if roomID == "" {
		return fmt.Errorf("%w: missing room", core.ErrMalformedJoin)
	}
	if info == nil || info.Username == "" {
		return fmt.Errorf("%w: missing user identity", core.ErrMalformedJoin)
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return fmt.Errorf("join %s: %w", roomID, core.ErrUnknownRoom)
	}
	if !room.IsVoice() {
		return fmt.Errorf("join %s: %w", roomID, core.ErrNotVoiceRoom)
	}
	return nil
}

// leave handles an explicit leave_voice_room. A leave naming a room the
// connection is no longer in is stale and ignored.
func (o *Orchestrator) leave(sid core.ConnectionID, roomID domain.RoomID) {
	if c, ok := o.Registry.Get(sid); ok && roomID != "" && c.Room != roomID {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("current", string(c.Room)).Msg("stale leave ignored")
		return
	}
	o.removeConnection(sid, "leave")
}

// removeConnection is the single cleanup path for leave, disconnect and
// kick. Registry.Remove reports the record only once, so the broadcasts
// below run at most once per connection lifetime.
func (o *Orchestrator) removeConnection(sid core.ConnectionID, reason string) bool {
	prior, ok := o.Registry.Remove(sid)
	if !ok {
		return false
	}
	o.forgetPeer(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(prior.Room)).Str("reason", reason).Msg("connection removed")
	if prior.Room != "" {
		o.onMembershipChanged(prior.Room)
		o.broadcastLeft(prior.Room, sid)
	}
	return true
}

func (o *Orchestrator) replyError(sid core.ConnectionID, err error) {
	code := protocol.ErrCodeMalformedJoin
	switch {
	case errors.Is(err, core.ErrUnknownRoom):
		code = protocol.ErrCodeUnknownRoom
	case errors.Is(err, core.ErrNotVoiceRoom):
		code = protocol.ErrCodeNotVoiceRoom
	}
	_ = o.send(sid, app.ControlTraffic, protocol.EventError, protocol.Error{Error: code, Message: err.Error()})
}
