package client

import (
	"sort"
	"sync"

	"github.com/dkeye/voicerelay/internal/core"
)

// PeerSession is the client side of one peer-to-peer media session.
type PeerSession interface {
	HandleSignal(PeerSignal) error
	Close()
}

// PeerSet maps remote connection ids to their sessions. There is at most
// one session per remote, and every session is closed exactly once.
type PeerSet struct {
	mu    sync.Mutex
	peers map[core.ConnectionID]PeerSession
}

func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[core.ConnectionID]PeerSession)}
}

func (s *PeerSet) Get(id core.ConnectionID) (PeerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	return p, ok
}

// GetOrCreate returns the session for id, building it with create when
// absent. created reports whether create ran and succeeded.
func (s *PeerSet) GetOrCreate(id core.ConnectionID, create func() (PeerSession, error)) (p PeerSession, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[id]; ok {
		return p, false, nil
	}
	p, err = create()
	if err != nil {
		return nil, false, err
	}
	s.peers[id] = p
	return p, true, nil
}

// Remove closes and forgets the session for id. It reports whether one
// existed; calling it again is a no-op.
func (s *PeerSet) Remove(id core.ConnectionID) bool {
	s.mu.Lock()
	p, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()
	if ok {
		p.Close()
	}
	return ok
}

func (s *PeerSet) CloseAll() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[core.ConnectionID]PeerSession)
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

func (s *PeerSet) IDs() []core.ConnectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]core.ConnectionID, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *PeerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
