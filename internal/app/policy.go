package app

import "github.com/dkeye/voicerelay/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick_member"
	case DropFrame:
		return "drop_frame"
	default:
		return "no_action"
	}
}

// TrafficClass tells the policy what kind of frame could not be queued.
type TrafficClass int

const (
	// ControlTraffic is rosters, leave notices and signals. Losing one
	// leaves the client with a wrong picture of the room.
	ControlTraffic TrafficClass = iota
	// VoiceActivityTraffic is speaking and mute updates. The next update
	// supersedes a lost one.
	VoiceActivityTraffic
)

func (c TrafficClass) String() string {
	if c == VoiceActivityTraffic {
		return "voice_activity"
	}
	return "control"
}

type Policy interface {
	OnBackPressure(sid core.ConnectionID, class TrafficClass) BackpressureAction
}

// SimplePolicy kicks connections that cannot keep up with control traffic
// and drops voice activity for them.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.ConnectionID, class TrafficClass) BackpressureAction {
	if class == VoiceActivityTraffic {
		return DropFrame
	}
	return KickMember
}
