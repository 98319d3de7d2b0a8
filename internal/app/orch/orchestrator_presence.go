package orch

import (
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// onMembershipChanged pushes the full roster of room to each of its members
// and publishes the member count.
func (o *Orchestrator) onMembershipChanged(room domain.RoomID) {
	roster := protocol.VoiceRoomUsers{Room: string(room), Users: o.Registry.Roster(room)}
	o.Rooms.SetMemberCount(room, len(roster.Users))
	o.broadcast(o.Registry.MembersOf(room), app.ControlTraffic, protocol.EventVoiceRoomUsers, roster)
	log.Debug().Str("module", "orch").Str("room", string(room)).Int("members", len(roster.Users)).Msg("roster broadcast")
}

func (o *Orchestrator) broadcastLeft(room domain.RoomID, gone core.ConnectionID) {
	o.broadcast(except(o.Registry.MembersOf(room), gone), app.ControlTraffic, protocol.EventUserLeftVoice, string(gone))
}

func except(ids []core.ConnectionID, skip core.ConnectionID) []core.ConnectionID {
	out := ids[:0]
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
