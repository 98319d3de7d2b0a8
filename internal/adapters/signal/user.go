package signal

import (
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

func (ctl *SignalWSController) handleSpeaking(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	var p protocol.UserSpeaking
	if !ctl.decode(sid, conn, env, &p) {
		return
	}
	submitted(sid, env.Type, ctl.Orch.UserSpeaking(sid, p))
}

func (ctl *SignalWSController) handleVoiceStatus(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	var p protocol.UserVoiceStatus
	if !ctl.decode(sid, conn, env, &p) {
		return
	}
	submitted(sid, env.Type, ctl.Orch.UserVoiceStatus(sid, p))
}

func (ctl *SignalWSController) handleWhoAmI(sid core.ConnectionID) {
	submitted(sid, protocol.EventWhoAmI, ctl.Orch.WhoAmI(sid))
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.EventPong, nil)
}
