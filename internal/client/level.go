package client

import (
	"math"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// RFC 6464 levels are -dBov in 0..127; 127 is silence.
const maxAudioLevel = 127

const (
	DefaultSpeakingThreshold = 10.0
	DefaultHangover          = 300 * time.Millisecond
)

// AudioLevelExtID finds the negotiated id of the audio level header
// extension.
func AudioLevelExtID(params webrtc.RTPParameters) (uint8, bool) {
	for _, ext := range params.HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI && ext.ID > 0 && ext.ID < 256 {
			return uint8(ext.ID), true
		}
	}
	return 0, false
}

// LevelFromPacket reads the audio level extension and maps it to 0..100.
// ok is false when the packet does not carry the extension.
func LevelFromPacket(pkt *rtp.Packet, extID uint8) (level float64, voice bool, ok bool) {
	if pkt == nil || extID == 0 {
		return 0, false, false
	}
	raw := pkt.GetExtension(extID)
	if raw == nil {
		return 0, false, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return 0, false, false
	}
	return LevelFromDBov(ext.Level), ext.Voice, true
}

func LevelFromDBov(dbov uint8) float64 {
	if dbov > maxAudioLevel {
		dbov = maxAudioLevel
	}
	return math.Round((1-float64(dbov)/maxAudioLevel)*1000) / 10
}

// ActivityDetector turns a stream of levels into speaking on/off edges.
// Speech ends only after Hangover of quiet so short pauses do not flap.
type ActivityDetector struct {
	Threshold float64
	Hangover  time.Duration

	speaking bool
	lastLoud time.Time
}

func NewActivityDetector() *ActivityDetector {
	return &ActivityDetector{Threshold: DefaultSpeakingThreshold, Hangover: DefaultHangover}
}

// Observe feeds one level sample. changed is true when speaking flipped.
func (d *ActivityDetector) Observe(level float64, now time.Time) (speaking bool, changed bool) {
	if level >= d.Threshold {
		d.lastLoud = now
		if !d.speaking {
			d.speaking = true
			return true, true
		}
		return true, false
	}
	if d.speaking && now.Sub(d.lastLoud) >= d.Hangover {
		d.speaking = false
		return false, true
	}
	return d.speaking, false
}

func (d *ActivityDetector) Speaking() bool { return d.speaking }
