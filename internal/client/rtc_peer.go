package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/adapters/rtc"
	"github.com/dkeye/voicerelay/internal/core"
)

// SignalSink delivers a local signal to the remote side through the relay.
type SignalSink func(PeerSignal)

// PeerFactory builds the session for one remote. The initiator sends the
// offer; the responder waits for it.
type PeerFactory interface {
	NewPeer(ctx context.Context, remote core.ConnectionID, initiator bool, out SignalSink) (PeerSession, error)
}

// LevelFunc receives the level of a remote's audio as measured from RTP.
type LevelFunc func(remote core.ConnectionID, level float64, speaking bool)

// RTCPeerFactory builds pion-backed sessions with a receive-only audio
// transceiver. It publishes no media of its own.
type RTCPeerFactory struct {
	API     *webrtc.API
	Config  webrtc.Configuration
	OnLevel LevelFunc
}

func NewRTCPeerFactory(iceURLs []string, onLevel LevelFunc) (*RTCPeerFactory, error) {
	api, err := rtc.NewAPI()
	if err != nil {
		return nil, err
	}
	return &RTCPeerFactory{API: api, Config: rtc.DefaultWebRTCConfig(iceURLs), OnLevel: onLevel}, nil
}

type rtcPeer struct {
	remote core.ConnectionID
	conn   *rtc.WebRTCConnection
	out    SignalSink
}

func (f *RTCPeerFactory) NewPeer(ctx context.Context, remote core.ConnectionID, initiator bool, out SignalSink) (PeerSession, error) {
	conn, err := rtc.NewWebRTCConnection(f.API, f.Config, remote)
	if err != nil {
		return nil, err
	}
	p := &rtcPeer{remote: remote, conn: conn, out: out}

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		out(CandidateSignal(ci))
	})
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go f.readLevels(ctx, remote, track, receiver)
	})
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.AddAudioTransceiver(webrtc.RTPTransceiverDirectionRecvonly); err != nil {
		conn.Close()
		return nil, err
	}

	if initiator {
		offer, err := conn.CreateAndSetOffer()
		if err != nil {
			conn.Close()
			return nil, err
		}
		out(DescriptionSignal(*offer))
	}
	return p, nil
}

func (p *rtcPeer) HandleSignal(s PeerSignal) error {
	switch {
	case s.Candidate != nil:
		return p.conn.AddICECandidate(*s.Candidate)
	case s.IsOffer():
		answer, err := p.conn.ApplyOfferAndCreateAnswer(s.Description())
		if err != nil {
			return err
		}
		p.out(DescriptionSignal(*answer))
		return nil
	case s.IsAnswer():
		return p.conn.ApplyAnswer(s.Description())
	default:
		return ErrEmptySignal
	}
}

func (p *rtcPeer) Close() { p.conn.Close() }

func (f *RTCPeerFactory) readLevels(ctx context.Context, remote core.ConnectionID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	extID, hasLevel := AudioLevelExtID(receiver.GetParameters())
	vad := NewActivityDetector()
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "client.rtc").Str("remote", string(remote)).Msg("read rtp")
			}
			return
		}
		if !hasLevel || f.OnLevel == nil {
			continue
		}
		level, _, ok := LevelFromPacket(pkt, extID)
		if !ok {
			continue
		}
		speaking, changed := vad.Observe(level, time.Now())
		if changed {
			f.OnLevel(remote, level, speaking)
		}
	}
}
