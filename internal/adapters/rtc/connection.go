package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
)

var ErrClosed = errors.New("peer connection closed")

// WebRTCConnection is one peer-to-peer media session with a remote
// connection. The signaling server never sees it; only its SDP and ICE
// candidates travel through the relay.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote core.ConnectionID
	cancel context.CancelFunc

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	closed    bool
	closeOnce sync.Once
}

func DefaultWebRTCConfig(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		iceURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceURLs,
			},
		},
	}
}

// NewAPI builds a pion API with default codecs, the RFC 6464 audio level
// header extension and the default interceptors.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	if err := m.RegisterHeaderExtension(
		webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI},
		webrtc.RTPCodecTypeAudio,
	); err != nil {
		return nil, fmt.Errorf("register audio level extension: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry)), nil
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, remote core.ConnectionID) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, remote: remote}, nil
}

// Start wires pion callbacks. Callbacks must be set before Start.
func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	return nil
}

// AddAudioTransceiver makes the offer carry an audio m-line even when no
// local track is published.
func (c *WebRTCConnection) AddAudioTransceiver(direction webrtc.RTPTransceiverDirection) error {
	_, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: direction})
	return err
}

func (c *WebRTCConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	if err := c.flushCandidates(); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	return c.flushCandidates()
}

// AddICECandidate applies ci, or holds it until the remote description is
// set. Candidates routinely overtake the offer on the relay.
func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) flushCandidates() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			return fmt.Errorf("add pending candidate: %w", err)
		}
	}
	return nil
}

// Close is idempotent.
func (c *WebRTCConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	}
	c.fireClosed()
}

func (c *WebRTCConnection) fireClosed() {
	c.closeOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnClosed sets a callback fired once when the media session ends.
func (c *WebRTCConnection) OnClosed(fn func()) { c.onClosed = fn }
