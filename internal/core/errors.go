package core

import "errors"

var (
	// ErrUnknownConnection means the id is not in the registry. Usually the
	// connection just left; callers log it and move on.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrTargetUnavailable means a signal target has no live transport.
	ErrTargetUnavailable = errors.New("target unavailable")
	// ErrMalformedJoin means a join announcement lacked identity fields.
	ErrMalformedJoin = errors.New("malformed join")
	ErrUnknownRoom   = errors.New("unknown room")
	ErrNotVoiceRoom  = errors.New("not a voice room")

	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)
