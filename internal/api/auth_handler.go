package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

func (h *Handler) StartRegister(c *gin.Context) {
	creation, err := h.auth.StartRegistration(c.Request.Context(), sessionOf(c), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, creation)
}

func (h *Handler) FinishRegister(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	user, err := h.auth.FinishRegistration(c.Request.Context(), sessionOf(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UserResponse{UserID: user.ID, Username: user.Username})
}

func (h *Handler) StartLogin(c *gin.Context) {
	assertion, err := h.auth.StartAuthentication(c.Request.Context(), sessionOf(c), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, assertion)
}

func (h *Handler) FinishLogin(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	user, err := h.auth.FinishAuthentication(c.Request.Context(), sessionOf(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.l.Info("user signed in", zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, models.UserResponse{UserID: user.ID, Username: user.Username})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), sessionOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UserResponse{UserID: user.ID, Username: user.Username})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), sessionOf(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
