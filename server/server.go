// Package server exposes the rule engine over HTTP and streams session
// updates over WebSocket.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nathoo/lorecore/engine"
)

// Server routes requests to one engine.
type Server struct {
	Engine   *engine.Engine
	Upgrader websocket.Upgrader
	// PingInterval is how often idle feeds are pinged.
	PingInterval time.Duration

	router *gin.Engine
}

func New(e *engine.Engine) *Server {
	s := &Server{
		Engine: e,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		PingInterval: 25 * time.Second,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.GET("/campaigns/:campaign", s.getCampaign)

	sessions := api.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:session", s.getSession)
	sessions.POST("/:session/actions", s.postAction)
	sessions.POST("/:session/players", s.joinSession)
	sessions.DELETE("/:session/players/:player", s.leaveSession)
	sessions.POST("/:session/turn", s.advanceTurn)
	sessions.PUT("/:session/node", s.setNode)
	sessions.GET("/:session/hints", s.activeHints)
	sessions.GET("/:session/characters/:character/streaks", s.streaks)
	sessions.GET("/:session/characters/:character/chains", s.chains)
	sessions.GET("/:session/interactions/:interaction", s.interactionEffects)
	sessions.POST("/:session/encounters", s.startEncounter)
	sessions.POST("/:session/bluffs", s.bluff)
	sessions.GET("/:session/feed", s.feed)

	enc := api.Group("/encounters")
	enc.GET("/:encounter", s.getEncounter)
	enc.POST("/:encounter/ready", s.readyEncounter)
	enc.POST("/:encounter/activate", s.activateEncounter)
	enc.POST("/:encounter/resolve", s.resolveEncounter)
	enc.POST("/:encounter/duel", s.duelEncounter)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.DebugContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
