package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/polling_server/internal/live"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

func (h *Handler) CreatePoll(c *gin.Context) {
	var req models.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid poll"})
		return
	}
	user := userOf(c)
	h.l.Debug("data for creating new poll",
		zap.String("title", req.Title),
		zap.String("creator_id", user.ID),
		zap.Strings("options", req.Options))
	poll, err := h.polls.CreatePoll(req.Title, user.ID, req.Options)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, poll)
}

// ListPolls filters by ?creator=<username>; an unknown username lists nothing.
func (h *Handler) ListPolls(c *gin.Context) {
	creator := c.Query("creator")
	if creator == "" {
		c.JSON(http.StatusOK, h.polls.ListPolls(""))
		return
	}
	creatorID, ok := h.auth.LookupUserID(creator)
	if !ok {
		c.JSON(http.StatusOK, []*models.Poll{})
		return
	}
	c.JSON(http.StatusOK, h.polls.ListPolls(creatorID))
}

func (h *Handler) GetPoll(c *gin.Context) {
	poll, err := h.polls.GetPoll(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *Handler) Vote(c *gin.Context) {
	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid vote"})
		return
	}
	poll, err := h.polls.Vote(c.Param("id"), req.OptionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *Handler) ClosePoll(c *gin.Context) {
	poll, err := h.polls.ClosePoll(c.Param("id"), userOf(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *Handler) ResetPoll(c *gin.Context) {
	poll, err := h.polls.ResetPoll(c.Param("id"), userOf(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *Handler) DeletePoll(c *gin.Context) {
	if err := h.polls.DeletePoll(c.Param("id"), userOf(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ServeSocket upgrades to a websocket bound to the poll in the route. The
// poll does not have to exist yet.
func (h *Handler) ServeSocket(c *gin.Context) {
	pollID := c.Param("poll_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", zap.String("poll_id", pollID), zap.Error(err))
		return
	}
	h.l.Info("websocket connected", zap.String("poll_id", pollID))
	if err = live.NewSession(conn, pollID, h.polls, h.hub, h.l).Run(c.Request.Context()); err != nil {
		h.l.Debug("websocket closed with error", zap.String("poll_id", pollID), zap.Error(err))
	}
}
