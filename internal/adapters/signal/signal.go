package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/app/orch"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/core"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	Opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		Opts:    opts,
	}
}

// WsSignalConn is the server side of one signaling socket. Frames queued by
// TrySend are written by the write pump in order.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	// token identifies the browser (session cookie), not the connection.
	token string

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. Each socket gets
// a fresh connection id; tabs sharing a cookie are separate connections.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.ConnectionID(uuid.NewString())
	token := c.GetString(ClientTokenKey)
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("client_token", token).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:  ws,
		send:  make(chan core.Frame, ctl.Opts.SendBuffer),
		token: token,
	}
	if err := ctl.Orch.Connect(sid, conn); err != nil {
		logger.Error().Err(err).Msg("orchestrator rejected connection")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, conn)
	}()
}
