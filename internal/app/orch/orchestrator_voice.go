package orch

import (
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
)

// broadcastSpeaking stores the speaking flag and level and fans them out to
// the rest of the room. Lossy: a full queue drops the update.
func (o *Orchestrator) broadcastSpeaking(sid core.ConnectionID, patch domain.VoiceStatePatch) error {
	c, err := o.Registry.UpdateVoiceState(sid, patch)
	if err != nil {
		return err
	}
	update := protocol.SpeakingUpdate{
		UserID:     string(sid),
		Username:   c.User.Username,
		IsSpeaking: c.Voice.Speaking,
		VoiceLevel: c.Voice.Level,
	}
	o.broadcastOthers(c, protocol.EventUserSpeakingUpdate, update)
	return nil
}

func (o *Orchestrator) broadcastVoiceStatus(sid core.ConnectionID, patch domain.VoiceStatePatch) error {
	c, err := o.Registry.UpdateVoiceState(sid, patch)
	if err != nil {
		return err
	}
	update := protocol.VoiceStatusUpdate{
		UserID:        string(sid),
		Username:      c.User.Username,
		IsMuted:       c.Voice.Muted,
		IsVolumeMuted: c.Voice.VolumeMuted,
	}
	o.broadcastOthers(c, protocol.EventUserVoiceStatusUpdate, update)
	return nil
}

// broadcastOthers sends to every member of c's room except c itself.
func (o *Orchestrator) broadcastOthers(c app.Connection, eventType string, data any) {
	if c.Room == "" {
		return
	}
	o.broadcast(except(o.Registry.MembersOf(c.Room), c.ID), app.VoiceActivityTraffic, eventType, data)
}
