package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/adapters/signal"
	"github.com/dkeye/voicerelay/internal/app/orch"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/domain"
)

const (
	sessionName     = "VoiceSessions"
	sessionTokenKey = "ct"
	membersTimeout  = 2 * time.Second
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// signed session cookie. It identifies the browser, not a connection.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(sessionTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// GET /api/rooms: catalog with live member counts
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})

	// GET /api/rooms/:id/members: roster snapshot
	api.GET("/rooms/:id/members", func(c *gin.Context) {
		id := domain.RoomID(c.Param("id"))
		if _, ok := o.Rooms.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), membersTimeout)
		defer cancel()
		members, err := o.Members(reqCtx, id)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("members snapshot")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": id, "members": members})
	})

	// GET /api/ice: STUN/TURN URLs for peer connections
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.ICEServers})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client_token", c.GetString(signal.ClientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
