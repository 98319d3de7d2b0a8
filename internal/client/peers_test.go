package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/core"
)

type fakePeer struct {
	mu        sync.Mutex
	remote    core.ConnectionID
	initiator bool
	out       SignalSink
	signals   []PeerSignal
	closes    int
}

func (p *fakePeer) HandleSignal(s PeerSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s)
	if s.IsOffer() && p.out != nil {
		p.out(PeerSignal{Type: SignalAnswer, SDP: "answer-sdp"})
	}
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
}

func (p *fakePeer) closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func TestPeerSet_GetOrCreate(t *testing.T) {
	s := NewPeerSet()
	calls := 0
	create := func() (PeerSession, error) {
		calls++
		return &fakePeer{}, nil
	}

	p1, created, err := s.GetOrCreate("B", create)
	require.NoError(t, err)
	require.True(t, created)
	p2, created, err := s.GetOrCreate("B", create)
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, p1, p2)
	require.Equal(t, 1, calls)

	_, _, err = s.GetOrCreate("C", func() (PeerSession, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	_, ok := s.Get("C")
	require.False(t, ok)
	require.Equal(t, 1, s.Len())
}

func TestPeerSet_RemoveClosesOnce(t *testing.T) {
	s := NewPeerSet()
	p := &fakePeer{}
	_, _, err := s.GetOrCreate("B", func() (PeerSession, error) { return p, nil })
	require.NoError(t, err)

	require.True(t, s.Remove("B"))
	require.False(t, s.Remove("B"))
	require.Equal(t, 1, p.closed())

	s.CloseAll()
	require.Equal(t, 1, p.closed())
}

func TestPeerSet_CloseAll(t *testing.T) {
	s := NewPeerSet()
	peers := map[core.ConnectionID]*fakePeer{"B": {}, "C": {}, "D": {}}
	for id, p := range peers {
		p := p
		_, _, err := s.GetOrCreate(id, func() (PeerSession, error) { return p, nil })
		require.NoError(t, err)
	}
	require.Equal(t, []core.ConnectionID{"B", "C", "D"}, s.IDs())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.CloseAll()
		}()
	}
	wg.Wait()

	for _, p := range peers {
		require.Equal(t, 1, p.closed())
	}
	require.Equal(t, 0, s.Len())
}
