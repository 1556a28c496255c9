package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

const NotFoundMessage = "nothing to see here mate just go to /login or register to start the flow..."

var statuses = []struct {
	err     error
	status  int
	message string
}{
	{models.ErrPollNotFound, http.StatusNotFound, "Poll not found"},
	{models.ErrOptionNotFound, http.StatusNotFound, "Option not found"},
	{models.ErrUserNotFound, http.StatusNotFound, "User Not Found"},
	{models.ErrUserNotOwner, http.StatusForbidden, "Not authorized"},
	{models.ErrNotAuthenticated, http.StatusUnauthorized, "Not authenticated"},
	{models.ErrPollClosed, http.StatusConflict, "Poll is closed"},
	{models.ErrUsernameTaken, http.StatusConflict, "Username is taken"},
	{models.ErrCorruptSession, http.StatusBadRequest, "Corrupt Session"},
	{models.ErrVerificationFailed, http.StatusBadRequest, "Verification failed"},
	{models.ErrUserHasNoCredentials, http.StatusBadRequest, "User Has No Credentials"},
	{models.ErrUsernameIsEmpty, http.StatusBadRequest, models.ErrUsernameIsEmpty.Error()},
	{models.ErrTitleIsEmpty, http.StatusBadRequest, models.ErrTitleIsEmpty.Error()},
	{models.ErrOptionIsEmpty, http.StatusBadRequest, models.ErrOptionIsEmpty.Error()},
	{models.ErrNotEnoughOptions, http.StatusBadRequest, models.ErrNotEnoughOptions.Error()},
}

func (h *Handler) fail(c *gin.Context, err error) {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			h.l.Warn("request rejected",
				zap.String("path", c.FullPath()),
				zap.Int("status", s.status),
				zap.Error(err))
			c.AbortWithStatusJSON(s.status, gin.H{"error": s.message})
			return
		}
	}
	h.l.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Unknown error occurred"})
}
