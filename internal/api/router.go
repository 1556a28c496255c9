package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/service"
	"github.com/jaam8/polling_server/internal/session"
	"go.uber.org/zap"
)

type Handler struct {
	polls    *service.PollService
	auth     *service.AuthService
	sessions *session.Manager
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	l        *zap.Logger
}

func New(polls *service.PollService, auth *service.AuthService, sessions *session.Manager, hub *broadcast.Hub, origins []string, l *zap.Logger) *Handler {
	return &Handler{
		polls:    polls,
		auth:     auth,
		sessions: sessions,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, origin)
			},
		},
		l: l,
	}
}

func NewRouter(h *Handler, origins []string, l *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(l), cors(origins))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	authGroup := r.Group("/api/auth", h.withSession)
	{
		authGroup.POST("/register_start/:username", h.StartRegister)
		authGroup.POST("/register_finish", h.FinishRegister)
		authGroup.POST("/login_start/:username", h.StartLogin)
		authGroup.POST("/login_finish", h.FinishLogin)
		authGroup.GET("/me", h.Me)
		authGroup.POST("/logout", h.Logout)
	}

	pollGroup := r.Group("/api/polls")
	{
		pollGroup.GET("", h.ListPolls)
		pollGroup.GET("/:id", h.GetPoll)
		pollGroup.POST("/:id/vote", h.Vote)

		owned := pollGroup.Group("", h.withSession, h.requireUser)
		owned.POST("", h.CreatePoll)
		owned.POST("/:id/close", h.ClosePoll)
		owned.POST("/:id/reset", h.ResetPoll)
		owned.DELETE("/:id", h.DeletePoll)
	}

	r.GET("/ws/polls/:poll_id", h.ServeSocket)

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, NotFoundMessage)
	})
	return r
}
