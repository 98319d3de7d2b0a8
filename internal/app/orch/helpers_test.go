package orch

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
)

// fakeConn records every frame it accepts.
type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
	closes int
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnectionClosed
	}
	if f.full {
		return core.ErrBackpressure
	}
	env, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes++
}

func (f *fakeConn) setFull(full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = full
}

// take returns the recorded frames and forgets them.
func (f *fakeConn) take() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.frames
	f.frames = nil
	return out
}

func types(envs []protocol.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	conns map[core.ConnectionID]*fakeConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rooms, err := app.NewRoomManager([]domain.Room{
		{ID: "general", Kind: domain.RoomKindText},
		{ID: "lounge", Kind: domain.RoomKindVoice},
		{ID: "gaming", Kind: domain.RoomKindVoice},
	})
	require.NoError(t, err)
	return &harness{
		t:     t,
		o:     New(app.NewRegistry(), rooms, app.SimplePolicy{}, 0),
		conns: make(map[core.ConnectionID]*fakeConn),
	}
}

// drain runs queued events on the test goroutine, standing in for Run.
func (h *harness) drain() {
	for {
		select {
		case ev := <-h.o.events:
			h.o.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) connect(id core.ConnectionID) *fakeConn {
	h.t.Helper()
	c := &fakeConn{}
	h.conns[id] = c
	require.NoError(h.t, h.o.Connect(id, c))
	h.drain()
	return c
}

func (h *harness) join(id core.ConnectionID, room, name string) {
	h.t.Helper()
	require.NoError(h.t, h.o.JoinVoiceRoom(id, protocol.JoinVoiceRoom{
		Room: room,
		User: &protocol.UserInfo{ID: "u-" + name, Username: name},
	}))
	h.drain()
}

// joined connects and joins each id to room, then clears all recorded frames.
func (h *harness) joined(room string, ids ...core.ConnectionID) {
	h.t.Helper()
	for _, id := range ids {
		h.connect(id)
		h.join(id, room, string(id))
	}
	h.reset()
}

func (h *harness) reset() {
	for _, c := range h.conns {
		c.take()
	}
}

func (h *harness) signal(from, to core.ConnectionID, payload string) {
	h.t.Helper()
	require.NoError(h.t, h.o.SendingSignal(from, protocol.SendingSignal{
		UserToSignal: string(to),
		CallerID:     string(from),
		Signal:       json.RawMessage(payload),
	}))
	h.drain()
}

func rosterOf(t *testing.T, env protocol.Envelope) (string, []core.ConnectionID) {
	t.Helper()
	require.Equal(t, protocol.EventVoiceRoomUsers, env.Type)
	var p protocol.VoiceRoomUsers
	require.NoError(t, protocol.DecodeData(env, &p))
	ids := make([]core.ConnectionID, 0, len(p.Users))
	for _, u := range p.Users {
		ids = append(ids, u.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return p.Room, ids
}

func stringData(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	var s string
	require.NoError(t, protocol.DecodeData(env, &s))
	return s
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, protocol.DecodeData(env, &v))
	return v
}

func ptr[T any](v T) *T { return &v }
