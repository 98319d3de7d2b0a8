package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultEventBuffer = 256

var ErrStopped = errors.New("orchestrator stopped")

// Orchestrator owns the registry, the live transports and the handshake
// bookkeeping. All of it is touched only from the Run goroutine; transport
// goroutines talk to it through the exported methods, which enqueue events.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy

	links     map[core.ConnectionID]core.SignalConnection
	announced map[core.ConnectionID]map[core.ConnectionID]struct{}
	kicks     []core.ConnectionID

	events chan event
	done   chan struct{}
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy, buffer int) *Orchestrator {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Orchestrator{
		Registry:  reg,
		Rooms:     rooms,
		Policy:    policy,
		links:     make(map[core.ConnectionID]core.SignalConnection),
		announced: make(map[core.ConnectionID]map[core.ConnectionID]struct{}),
		events:    make(chan event, buffer),
		done:      make(chan struct{}),
	}
}

type eventKind uint8

const (
	evUnknown eventKind = iota
	evConnect
	evDisconnect
	evJoin
	evLeave
	evSendingSignal
	evReturningSignal
	evSpeaking
	evVoiceStatus
	evWhoAmI
	evMembers
)

func (k eventKind) String() string {
	switch k {
	case evConnect:
		return "connect"
	case evDisconnect:
		return "disconnect"
	case evJoin:
		return protocol.EventJoinVoiceRoom
	case evLeave:
		return protocol.EventLeaveVoiceRoom
	case evSendingSignal:
		return protocol.EventSendingSignal
	case evReturningSignal:
		return protocol.EventReturningSignal
	case evSpeaking:
		return protocol.EventUserSpeaking
	case evVoiceStatus:
		return protocol.EventUserVoiceStatus
	case evWhoAmI:
		return protocol.EventWhoAmI
	case evMembers:
		return "members"
	default:
		return "unknown"
	}
}

type event struct {
	kind   eventKind
	sid    core.ConnectionID
	conn   core.SignalConnection
	room   domain.RoomID
	user   *protocol.UserInfo
	target core.ConnectionID
	caller core.ConnectionID
	signal json.RawMessage
	voice  domain.VoiceStatePatch
	reply  chan []core.MemberDTO
}

// Run processes events one at a time until ctx is done. Each event runs to
// completion before the next one starts, which gives per-room ordering of
// roster broadcasts without locks.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			log.Info().Str("module", "orch").Msg("dispatch loop stopped")
			return nil
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

// Connect attaches a live transport. The connection stays unregistered
// until it announces a join.
func (o *Orchestrator) Connect(sid core.ConnectionID, conn core.SignalConnection) error {
	return o.submit(event{kind: evConnect, sid: sid, conn: conn})
}

// Disconnect is sent once by the transport when the session is gone.
func (o *Orchestrator) Disconnect(sid core.ConnectionID) error {
	return o.submit(event{kind: evDisconnect, sid: sid})
}

func (o *Orchestrator) JoinVoiceRoom(sid core.ConnectionID, p protocol.JoinVoiceRoom) error {
	return o.submit(event{kind: evJoin, sid: sid, room: domain.RoomID(p.Room), user: p.User})
}

func (o *Orchestrator) LeaveVoiceRoom(sid core.ConnectionID, p protocol.LeaveVoiceRoom) error {
	return o.submit(event{kind: evLeave, sid: sid, room: domain.RoomID(p.Room)})
}

func (o *Orchestrator) SendingSignal(sid core.ConnectionID, p protocol.SendingSignal) error {
	return o.submit(event{
		kind:   evSendingSignal,
		sid:    sid,
		target: core.ConnectionID(p.UserToSignal),
		caller: core.ConnectionID(p.CallerID),
		signal: p.Signal,
	})
}

func (o *Orchestrator) ReturningSignal(sid core.ConnectionID, p protocol.ReturningSignal) error {
	return o.submit(event{
		kind:   evReturningSignal,
		sid:    sid,
		caller: core.ConnectionID(p.CallerID),
		signal: p.Signal,
	})
}

func (o *Orchestrator) UserSpeaking(sid core.ConnectionID, p protocol.UserSpeaking) error {
	return o.submit(event{
		kind:  evSpeaking,
		sid:   sid,
		voice: domain.VoiceStatePatch{Speaking: p.IsSpeaking, Level: p.VoiceLevel},
	})
}

func (o *Orchestrator) UserVoiceStatus(sid core.ConnectionID, p protocol.UserVoiceStatus) error {
	return o.submit(event{
		kind:  evVoiceStatus,
		sid:   sid,
		voice: domain.VoiceStatePatch{Muted: p.IsMuted, VolumeMuted: p.IsVolumeMuted},
	})
}

func (o *Orchestrator) WhoAmI(sid core.ConnectionID) error {
	return o.submit(event{kind: evWhoAmI, sid: sid})
}

// Members returns a roster snapshot of room read inside the loop, so the
// caller never holds a live reference to the registry.
func (o *Orchestrator) Members(ctx context.Context, room domain.RoomID) ([]core.MemberDTO, error) {
	reply := make(chan []core.MemberDTO, 1)
	if err := o.submitCtx(ctx, event{kind: evMembers, room: room, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case members := <-reply:
		return members, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.done:
		return nil, ErrStopped
	}
}

func (o *Orchestrator) submit(ev event) error {
	return o.submitCtx(context.Background(), ev)
}

// submitCtx blocks while the event queue is full. A read pump stalled here
// stops reading its socket, which pushes back on that client only.
func (o *Orchestrator) submitCtx(ctx context.Context, ev event) error {
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) handle(ev event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "orch").
				Str("sid", string(ev.sid)).
				Str("event", ev.kind.String()).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	var err error
	switch ev.kind {
	case evConnect:
		o.connect(ev.sid, ev.conn)
	case evDisconnect:
		o.disconnect(ev.sid)
	case evJoin:
		err = o.join(ev.sid, ev.room, ev.user)
	case evLeave:
		o.leave(ev.sid, ev.room)
	case evSendingSignal:
		err = o.sendingSignal(ev.sid, ev.target, ev.caller, ev.signal)
	case evReturningSignal:
		err = o.relay(ev.sid, ev.caller, ev.signal)
	case evSpeaking:
		err = o.broadcastSpeaking(ev.sid, ev.voice)
	case evVoiceStatus:
		err = o.broadcastVoiceStatus(ev.sid, ev.voice)
	case evWhoAmI:
		o.whoAmI(ev.sid)
	case evMembers:
		ev.reply <- o.Registry.Roster(ev.room)
	default:
		log.Warn().Str("module", "orch").Uint8("kind", uint8(ev.kind)).Msg("unknown event")
	}
	if err != nil {
		o.logError(ev, err)
	}
	o.flushKicks()
}

func (o *Orchestrator) logError(ev event, err error) {
	l := log.Debug()
	if errors.Is(err, core.ErrMalformedJoin) || errors.Is(err, core.ErrUnknownRoom) || errors.Is(err, core.ErrNotVoiceRoom) {
		l = log.Warn()
	}
	l.Err(err).Str("module", "orch").Str("sid", string(ev.sid)).Str("event", ev.kind.String()).Msg("event dropped")
}

func (o *Orchestrator) connect(sid core.ConnectionID, conn core.SignalConnection) {
	if old, ok := o.links[sid]; ok && old != conn {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("replacing transport for sid")
		old.Close()
	}
	o.links[sid] = conn
	log.Info().Str("module", "orch").Str("sid", string(sid)).Int("links", len(o.links)).Msg("transport attached")
	_ = o.send(sid, app.ControlTraffic, protocol.EventConnected, protocol.Connected{ID: string(sid)})
}

// disconnect runs the shared cleanup and forgets the transport. A second
// disconnect, or one after an explicit leave, only detaches the link.
func (o *Orchestrator) disconnect(sid core.ConnectionID) {
	o.removeConnection(sid, "disconnect")
	if _, ok := o.links[sid]; ok {
		delete(o.links, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Int("links", len(o.links)).Msg("transport detached")
	}
}

func (o *Orchestrator) whoAmI(sid core.ConnectionID) {
	resp := protocol.WhoAmI{ID: string(sid)}
	if c, ok := o.Registry.Get(sid); ok {
		resp.Username = c.User.Username
		resp.Room = string(c.Room)
	}
	_ = o.send(sid, app.ControlTraffic, protocol.EventWhoAmI, resp)
}

// send encodes and queues one frame for sid. Failures go through the policy.
func (o *Orchestrator) send(sid core.ConnectionID, class app.TrafficClass, eventType string, data any) error {
	frame, err := encode(eventType, data)
	if err != nil {
		return err
	}
	return o.sendFrame(sid, class, eventType, frame)
}

// broadcast encodes once and queues the frame for each id.
func (o *Orchestrator) broadcast(ids []core.ConnectionID, class app.TrafficClass, eventType string, data any) {
	if len(ids) == 0 {
		return
	}
	frame, err := encode(eventType, data)
	if err != nil {
		return
	}
	for _, id := range ids {
		_ = o.sendFrame(id, class, eventType, frame)
	}
}

func encode(eventType string, data any) (core.Frame, error) {
	frame, err := protocol.Encode(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", eventType).Msg("encode")
		return nil, err
	}
	return frame, nil
}

func (o *Orchestrator) sendFrame(sid core.ConnectionID, class app.TrafficClass, eventType string, frame core.Frame) error {
	conn, ok := o.links[sid]
	if !ok {
		return fmt.Errorf("send %s to %s: %w", eventType, sid, core.ErrTargetUnavailable)
	}
	if err := conn.TrySend(frame); err != nil {
		o.onSendFailure(sid, class, eventType, err)
		return fmt.Errorf("send %s to %s: %w", eventType, sid, err)
	}
	return nil
}

func (o *Orchestrator) onSendFailure(sid core.ConnectionID, class app.TrafficClass, eventType string, err error) {
	action := app.KickMember
	if errors.Is(err, core.ErrBackpressure) && o.Policy != nil {
		action = o.Policy.OnBackPressure(sid, class)
	}
	log.Warn().
		Err(err).
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("event", eventType).
		Str("class", class.String()).
		Str("action", action.String()).
		Msg("send failed")
	if action == app.KickMember {
		o.kicks = append(o.kicks, sid)
	}
}

// flushKicks closes and cleans up connections the policy gave up on. It
// runs after the current event so broadcasts are never mutated mid-loop.
func (o *Orchestrator) flushKicks() {
	for len(o.kicks) > 0 {
		sid := o.kicks[0]
		o.kicks = o.kicks[1:]
		conn, ok := o.links[sid]
		if !ok {
			continue
		}
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking connection")
		conn.Close()
		o.disconnect(sid)
	}
}

func (o *Orchestrator) shutdown() {
	for sid, conn := range o.links {
		conn.Close()
		delete(o.links, sid)
	}
}
