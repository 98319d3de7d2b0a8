// Package protocol describes the JSON events exchanged over the signaling
// socket. Both the server adapters and the voice client use it.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/voicerelay/internal/core"
)

// Client to server.
const (
	EventJoinVoiceRoom   = "join_voice_room"
	EventLeaveVoiceRoom  = "leave_voice_room"
	EventSendingSignal   = "sending_signal"
	EventReturningSignal = "returning_signal"
	EventUserSpeaking    = "user_speaking"
	EventUserVoiceStatus = "user_voice_status"
	EventPing            = "ping"
	EventWhoAmI          = "whoami"
)

// Server to client.
const (
	EventConnected               = "connected"
	EventVoiceRoomUsers          = "voice_room_users"
	EventUserJoinedVoice         = "user_joined_voice"
	EventReceivingReturnedSignal = "receiving_returned_signal"
	EventUserLeftVoice           = "user_left_voice"
	EventUserSpeakingUpdate      = "user_speaking_update"
	EventUserVoiceStatusUpdate   = "user_voice_status_update"
	EventPong                    = "pong"
	EventError                   = "error"
)

// Error codes carried by EventError.
const (
	ErrCodeBadPayload    = "bad_payload"
	ErrCodeMalformedJoin = "malformed_join"
	ErrCodeUnknownRoom   = "unknown_room"
	ErrCodeNotVoiceRoom  = "not_voice_room"
	ErrCodeRateLimited   = "rate_limited"
)

type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type JoinVoiceRoom struct {
	Room string    `json:"room"`
	User *UserInfo `json:"user"`
}

type LeaveVoiceRoom struct {
	Room string `json:"room"`
}

// SendingSignal opens or continues a handshake with UserToSignal.
// Signal is opaque to the server.
type SendingSignal struct {
	UserToSignal string          `json:"userToSignal"`
	CallerID     string          `json:"callerId"`
	Signal       json.RawMessage `json:"signal"`
}

// ReturningSignal answers the handshake opened by CallerID.
type ReturningSignal struct {
	Signal   json.RawMessage `json:"signal"`
	CallerID string          `json:"callerId"`
}

// UserSpeaking and UserVoiceStatus use pointers so that an absent field
// leaves the stored value untouched.
type UserSpeaking struct {
	IsSpeaking *bool    `json:"isSpeaking"`
	VoiceLevel *float64 `json:"voiceLevel"`
}

type UserVoiceStatus struct {
	IsMuted       *bool `json:"isMuted"`
	IsVolumeMuted *bool `json:"isVolumeMuted"`
}

type Connected struct {
	ID string `json:"id"`
}

type VoiceRoomUsers struct {
	Room  string           `json:"room"`
	Users []core.MemberDTO `json:"users"`
}

type ReturnedSignal struct {
	ID     string          `json:"id"`
	Signal json.RawMessage `json:"signal"`
}

type SpeakingUpdate struct {
	UserID     string  `json:"userId"`
	Username   string  `json:"username"`
	IsSpeaking bool    `json:"isSpeaking"`
	VoiceLevel float64 `json:"voiceLevel"`
}

type VoiceStatusUpdate struct {
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	IsMuted       bool   `json:"isMuted"`
	IsVolumeMuted bool   `json:"isVolumeMuted"`
}

type WhoAmI struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
}

type Error struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
