// Package client is a headless participant of the voice relay. It keeps one
// peer session per room member and routes their handshake through the
// signaling socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

const (
	DefaultSendBuffer = 64
	writeWait         = 5 * time.Second
)

// Handlers are optional callbacks invoked from the read loop.
type Handlers struct {
	OnRoster      func(protocol.VoiceRoomUsers)
	OnPeerJoined  func(core.ConnectionID)
	OnPeerLeft    func(core.ConnectionID)
	OnSpeaking    func(protocol.SpeakingUpdate)
	OnVoiceStatus func(protocol.VoiceStatusUpdate)
	OnError       func(protocol.Error)
}

type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	factory  PeerFactory
	peers    *PeerSet
	handlers Handlers

	mu             sync.Mutex
	id             core.ConnectionID
	room           string
	awaitingRoster bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, factory PeerFactory, h Handlers) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, DefaultSendBuffer),
		factory:  factory,
		peers:    NewPeerSet(),
		handlers: h,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Dial opens the signaling socket. Call Run to start processing.
func Dial(ctx context.Context, url string, header http.Header, factory PeerFactory, h Handlers) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newClient(conn, factory, h), nil
}

func (c *Client) ID() core.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Ready is closed once the server has assigned a connection id.
func (c *Client) Ready() <-chan struct{} { return c.ready }

func (c *Client) Peers() []core.ConnectionID { return c.peers.IDs() }

// Run pumps the socket until ctx ends or the server goes away. All peer
// sessions are closed on return.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.writeLoop(gctx)
	})
	g.Go(func() error {
		defer c.Close()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.done:
		}
		c.Close()
		return nil
	})
	err := g.Wait()
	c.peers.CloseAll()
	return err
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame")
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if c.closed() {
					return nil
				}
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// Join enters room. Peers of a previous room are dropped; the roster that
// follows decides whom this client calls.
func (c *Client) Join(room string, user protocol.UserInfo) error {
	c.mu.Lock()
	c.room = room
	c.awaitingRoster = true
	c.mu.Unlock()
	c.peers.CloseAll()
	return c.emit(protocol.EventJoinVoiceRoom, protocol.JoinVoiceRoom{Room: room, User: &user})
}

func (c *Client) Leave() error {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.awaitingRoster = false
	c.mu.Unlock()
	c.peers.CloseAll()
	return c.emit(protocol.EventLeaveVoiceRoom, protocol.LeaveVoiceRoom{Room: room})
}

func (c *Client) SetSpeaking(speaking bool, level float64) error {
	return c.emit(protocol.EventUserSpeaking, protocol.UserSpeaking{IsSpeaking: &speaking, VoiceLevel: &level})
}

func (c *Client) SetVoiceStatus(muted, volumeMuted bool) error {
	return c.emit(protocol.EventUserVoiceStatus, protocol.UserVoiceStatus{IsMuted: &muted, IsVolumeMuted: &volumeMuted})
}

func (c *Client) WhoAmI() error {
	return c.emit(protocol.EventWhoAmI, nil)
}

func (c *Client) Ping() error {
	return c.emit(protocol.EventPing, nil)
}

func (c *Client) emit(eventType string, data any) error {
	frame, err := protocol.Encode(eventType, data)
	if err != nil {
		return err
	}
	if c.closed() {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return core.ErrConnectionClosed
	default:
		return core.ErrBackpressure
	}
}

func (c *Client) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.EventConnected:
		var p protocol.Connected
		if !c.decode(env, &p) {
			return
		}
		c.mu.Lock()
		c.id = core.ConnectionID(p.ID)
		c.mu.Unlock()
		c.readyOnce.Do(func() { close(c.ready) })
		log.Info().Str("module", "client").Str("id", p.ID).Msg("connected")

	case protocol.EventVoiceRoomUsers:
		var p protocol.VoiceRoomUsers
		if !c.decode(env, &p) {
			return
		}
		c.onRoster(ctx, p)

	case protocol.EventUserJoinedVoice:
		var id string
		if !c.decode(env, &id) {
			return
		}
		c.ensurePeer(ctx, core.ConnectionID(id), false)

	case protocol.EventReceivingReturnedSignal:
		var p protocol.ReturnedSignal
		if !c.decode(env, &p) {
			return
		}
		c.onSignal(ctx, p)

	case protocol.EventUserLeftVoice:
		var id string
		if !c.decode(env, &id) {
			return
		}
		remote := core.ConnectionID(id)
		if c.peers.Remove(remote) {
			log.Info().Str("module", "client").Str("remote", id).Msg("peer left")
		}
		if c.handlers.OnPeerLeft != nil {
			c.handlers.OnPeerLeft(remote)
		}

	case protocol.EventUserSpeakingUpdate:
		var p protocol.SpeakingUpdate
		if c.decode(env, &p) && c.handlers.OnSpeaking != nil {
			c.handlers.OnSpeaking(p)
		}

	case protocol.EventUserVoiceStatusUpdate:
		var p protocol.VoiceStatusUpdate
		if c.decode(env, &p) && c.handlers.OnVoiceStatus != nil {
			c.handlers.OnVoiceStatus(p)
		}

	case protocol.EventError:
		var p protocol.Error
		if !c.decode(env, &p) {
			return
		}
		log.Warn().Str("module", "client").Str("code", p.Error).Str("message", p.Message).Msg("server error")
		if isJoinRejection(p.Error) {
			c.mu.Lock()
			c.room = ""
			c.awaitingRoster = false
			c.mu.Unlock()
		}
		if c.handlers.OnError != nil {
			c.handlers.OnError(p)
		}

	case protocol.EventPong, protocol.EventWhoAmI:
		log.Debug().Str("module", "client").Str("type", env.Type).Str("data", string(env.Data)).Msg("reply")

	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unhandled event")
	}
}

func isJoinRejection(code string) bool {
	switch code {
	case protocol.ErrCodeMalformedJoin, protocol.ErrCodeUnknownRoom,
		protocol.ErrCodeNotVoiceRoom, protocol.ErrCodeRateLimited:
		return true
	}
	return false
}

// onRoster calls every member of the first roster after our own join.
// Later rosters only inform; newcomers call us.
func (c *Client) onRoster(ctx context.Context, p protocol.VoiceRoomUsers) {
	c.mu.Lock()
	initiate := c.awaitingRoster && p.Room == c.room
	if initiate {
		c.awaitingRoster = false
	}
	c.mu.Unlock()

	if initiate {
		for _, u := range p.Users {
			c.ensurePeer(ctx, u.ID, true)
		}
	}
	if c.handlers.OnRoster != nil {
		c.handlers.OnRoster(p)
	}
}

func (c *Client) onSignal(ctx context.Context, p protocol.ReturnedSignal) {
	remote := core.ConnectionID(p.ID)
	sig, err := ParsePeerSignal(p.Signal)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("remote", p.ID).Msg("bad signal")
		return
	}
	peer, ok := c.peers.Get(remote)
	if !ok {
		if !sig.IsOffer() {
			log.Debug().Str("module", "client").Str("remote", p.ID).Msg("signal for unknown peer dropped")
			return
		}
		if peer, ok = c.ensurePeer(ctx, remote, false); !ok {
			return
		}
	}
	if err := peer.HandleSignal(sig); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("remote", p.ID).Msg("apply signal")
	}
}

func (c *Client) ensurePeer(ctx context.Context, remote core.ConnectionID, initiator bool) (PeerSession, bool) {
	if remote == "" || remote == c.ID() {
		return nil, false
	}
	peer, created, err := c.peers.GetOrCreate(remote, func() (PeerSession, error) {
		return c.factory.NewPeer(ctx, remote, initiator, c.sinkFor(remote, initiator))
	})
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("create peer")
		return nil, false
	}
	if created {
		log.Info().Str("module", "client").Str("remote", string(remote)).Bool("initiator", initiator).Msg("peer created")
		if c.handlers.OnPeerJoined != nil {
			c.handlers.OnPeerJoined(remote)
		}
	}
	return peer, true
}

// sinkFor routes local signals: the caller side opens with sending_signal,
// the answering side replies with returning_signal.
func (c *Client) sinkFor(remote core.ConnectionID, initiator bool) SignalSink {
	return func(s PeerSignal) {
		raw, err := json.Marshal(s)
		if err != nil {
			log.Error().Err(err).Str("module", "client").Msg("marshal signal")
			return
		}
		if initiator {
			err = c.emit(protocol.EventSendingSignal, protocol.SendingSignal{
				UserToSignal: string(remote),
				CallerID:     string(c.ID()),
				Signal:       raw,
			})
		} else {
			err = c.emit(protocol.EventReturningSignal, protocol.ReturningSignal{
				Signal:   raw,
				CallerID: string(remote),
			})
		}
		if err != nil && !errors.Is(err, core.ErrConnectionClosed) {
			log.Warn().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("send signal")
		}
	}
}

func (c *Client) decode(env protocol.Envelope, v any) bool {
	if err := protocol.DecodeData(env, v); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad payload")
		return false
	}
	return true
}
