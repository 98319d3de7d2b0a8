package core

import "github.com/dkeye/voicerelay/internal/domain"

//go:generate go tool mockgen -destination=./mocks/signal_mock.go -package=mocks . SignalConnection

// ConnectionID identifies one live transport session. It is assigned by
// the transport, never chosen by the client.
type ConnectionID string

// Frame is an encoded message ready for the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. It fails with ErrBackpressure when
	// the queue is full and ErrConnectionClosed after Close.
	TrySend(f Frame) error
	Close()
}

// MemberDTO is the public projection of a room member. It never carries
// transport fields.
type MemberDTO struct {
	ID            ConnectionID  `json:"id"`
	UserID        domain.UserID `json:"userId"`
	Username      string        `json:"username"`
	IsMuted       bool          `json:"isMuted"`
	IsVolumeMuted bool          `json:"isVolumeMuted"`
	IsSpeaking    bool          `json:"isSpeaking"`
	VoiceLevel    float64       `json:"voiceLevel"`
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Kind        domain.RoomKind `json:"kind"`
	MemberCount int             `json:"memberCount"`
}
