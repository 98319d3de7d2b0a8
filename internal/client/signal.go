package client

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
)

var ErrEmptySignal = errors.New("signal carries neither description nor candidate")

// PeerSignal is what the client puts in the opaque signal field. Either a
// session description or one trickled ICE candidate.
type PeerSignal struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func DescriptionSignal(d webrtc.SessionDescription) PeerSignal {
	return PeerSignal{Type: d.Type.String(), SDP: d.SDP}
}

func CandidateSignal(ci webrtc.ICECandidateInit) PeerSignal {
	return PeerSignal{Candidate: &ci}
}

func (s PeerSignal) IsOffer() bool  { return s.Type == SignalOffer }
func (s PeerSignal) IsAnswer() bool { return s.Type == SignalAnswer }

func (s PeerSignal) Description() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(s.Type), SDP: s.SDP}
}

func ParsePeerSignal(raw json.RawMessage) (PeerSignal, error) {
	var s PeerSignal
	if err := json.Unmarshal(raw, &s); err != nil {
		return PeerSignal{}, err
	}
	if s.Candidate == nil && s.Type == "" {
		return PeerSignal{}, ErrEmptySignal
	}
	return s, nil
}
