package domain

const (
	MinVoiceLevel = 0
	MaxVoiceLevel = 100
)

// VoiceState is what a client asserts about its own audio.
// The server relays it and never verifies it.
type VoiceState struct {
	Muted       bool    `json:"isMuted"`
	VolumeMuted bool    `json:"isVolumeMuted"`
	Speaking    bool    `json:"isSpeaking"`
	Level       float64 `json:"voiceLevel"`
}

// VoiceStatePatch carries only the fields a client sent. Nil means keep.
type VoiceStatePatch struct {
	Muted       *bool
	VolumeMuted *bool
	Speaking    *bool
	Level       *float64
}

func (p VoiceStatePatch) IsEmpty() bool {
	return p.Muted == nil && p.VolumeMuted == nil && p.Speaking == nil && p.Level == nil
}

// Apply returns s with the supplied fields of p merged in.
func (s VoiceState) Apply(p VoiceStatePatch) VoiceState {
	if p.Muted != nil {
		s.Muted = *p.Muted
	}
	if p.VolumeMuted != nil {
		s.VolumeMuted = *p.VolumeMuted
	}
	if p.Speaking != nil {
		s.Speaking = *p.Speaking
	}
	if p.Level != nil {
		s.Level = ClampLevel(*p.Level)
	}
	return s
}

func ClampLevel(v float64) float64 {
	switch {
	case v != v: // NaN
		return MinVoiceLevel
	case v < MinVoiceLevel:
		return MinVoiceLevel
	case v > MaxVoiceLevel:
		return MaxVoiceLevel
	}
	return v
}

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User  User
	Voice VoiceState
}
