package signal

import (
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

// Signal payloads are passed through untouched; only the routing fields
// are read here.

func (ctl *SignalWSController) handleSendingSignal(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	var p protocol.SendingSignal
	if !ctl.decode(sid, conn, env, &p) {
		return
	}
	submitted(sid, env.Type, ctl.Orch.SendingSignal(sid, p))
}

func (ctl *SignalWSController) handleReturningSignal(
	sid core.ConnectionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	var p protocol.ReturningSignal
	if !ctl.decode(sid, conn, env, &p) {
		return
	}
	submitted(sid, env.Type, ctl.Orch.ReturningSignal(sid, p))
}
