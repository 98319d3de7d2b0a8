package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

var errJoinRateLimited = errors.New("too many join attempts")

func (ctl *SignalWSController) handleJoin(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	key := conn.token
	if key == "" {
		key = string(sid)
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(key) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, protocol.ErrCodeRateLimited, errJoinRateLimited)
		return
	}

	var p protocol.JoinVoiceRoom
	if err := protocol.DecodeData(env, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join payload")
		ctl.sendError(conn, protocol.ErrCodeMalformedJoin, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("join")
	submitted(sid, env.Type, ctl.Orch.JoinVoiceRoom(sid, p))
}

// handleLeave leaves the current room; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	var p protocol.LeaveVoiceRoom
	if len(env.Data) > 0 && !ctl.decode(sid, conn, env, &p) {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("leave")
	submitted(sid, env.Type, ctl.Orch.LeaveVoiceRoom(sid, p))
}
