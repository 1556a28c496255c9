package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/polling_server/internal/models"
	"github.com/jaam8/polling_server/internal/session"
	"go.uber.org/zap"
)

const (
	ctxSession = "session"
	ctxUser    = "user"
)

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// cors echoes allowed origins back so the browser sends the session cookie.
func cors(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) withSession(c *gin.Context) {
	sess, err := h.sessions.Load(c.Writer, c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(ctxSession, sess)
	c.Next()
}

func (h *Handler) requireUser(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), sessionOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(ctxUser, user)
	c.Next()
}

func sessionOf(c *gin.Context) *session.Session {
	return c.MustGet(ctxSession).(*session.Session)
}

func userOf(c *gin.Context) models.User {
	return c.MustGet(ctxUser).(models.User)
}
