package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

// ClientTokenKey is the gin context key set by the client token middleware.
const ClientTokenKey = "client_token"

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.ConnectionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump is the only place that reports the disconnect, exactly once,
// when the socket stops producing frames for any reason.
func (ctl *SignalWSController) readPump(ctx context.Context, sid core.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		if err := ctl.Orch.Disconnect(sid); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("disconnect not delivered")
		}
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump unexpected close")
			} else {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
		ctl.handleSignal(sid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(sid core.ConnectionID, c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, protocol.ErrCodeBadPayload, err)
		return
	}

	switch env.Type {
	case protocol.EventJoinVoiceRoom:
		ctl.handleJoin(sid, c, env)
	case protocol.EventLeaveVoiceRoom:
		ctl.handleLeave(sid, c, env)
	case protocol.EventSendingSignal:
		ctl.handleSendingSignal(sid, c, env)
	case protocol.EventReturningSignal:
		ctl.handleReturningSignal(sid, c, env)
	case protocol.EventUserSpeaking:
		ctl.handleSpeaking(sid, c, env)
	case protocol.EventUserVoiceStatus:
		ctl.handleVoiceStatus(sid, c, env)
	case protocol.EventPing:
		ctl.handlePing(c)
	case protocol.EventWhoAmI:
		ctl.handleWhoAmI(sid)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, eventType string, v any) {
	b, err := protocol.Encode(eventType, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string, err error) {
	ctl.sendJSON(c, protocol.EventError, protocol.Error{Error: code, Message: err.Error()})
}

// submitted logs events the orchestrator could not accept (shutdown).
func submitted(sid core.ConnectionID, eventType string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", eventType).Msg("event not submitted")
	}
}

// decode unmarshals the payload or answers bad_payload to the sender.
func (ctl *SignalWSController) decode(sid core.ConnectionID, c *WsSignalConn, env protocol.Envelope, v any) bool {
	if err := protocol.DecodeData(env, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("bad payload")
		ctl.sendError(c, protocol.ErrCodeBadPayload, err)
		return false
	}
	return true
}
