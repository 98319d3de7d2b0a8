package domain

import "fmt"

type (
	RoomID   string
	RoomName string
	RoomKind string
)

const (
	RoomKindText  RoomKind = "text"
	RoomKindVoice RoomKind = "voice"
)

// Room is a statically configured channel. Rooms are never created or
// destroyed while the server runs.
type Room struct {
	ID   RoomID   `json:"id"`
	Name RoomName `json:"name"`
	Kind RoomKind `json:"kind"`
}

func (r Room) IsVoice() bool { return r.Kind == RoomKindVoice }

func ParseRoomKind(s string) (RoomKind, error) {
	switch RoomKind(s) {
	case RoomKindText:
		return RoomKindText, nil
	case RoomKindVoice, "":
		return RoomKindVoice, nil
	default:
		return "", fmt.Errorf("unknown room kind %q", s)
	}
}
