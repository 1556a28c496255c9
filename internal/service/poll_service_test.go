package service

import (
	"testing"

	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/models"
	"github.com/jaam8/polling_server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPollService() *PollService {
	hub := broadcast.New(broadcast.DefaultBacklog, zap.NewNop())
	return NewPollService(repository.NewPollRepository(hub, zap.NewNop()), zap.NewNop())
}

func TestCreatePoll_Validation(t *testing.T) {
	s := newPollService()

	tests := []struct {
		name    string
		title   string
		options []string
		err     error
	}{
		{"empty title", "   ", []string{"a"}, models.ErrTitleIsEmpty},
		{"no options", "T", nil, models.ErrNotEnoughOptions},
		{"blank option", "T", []string{"a", " "}, models.ErrOptionIsEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePoll(tt.title, "u1", tt.options)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Empty(t, s.ListPolls(""))
}

func TestCreatePoll_TrimsInput(t *testing.T) {
	s := newPollService()
	poll, err := s.CreatePoll("  Lunch? ", "u1", []string{" pizza", "sushi "})
	require.NoError(t, err)

	assert.Equal(t, "Lunch?", poll.Title)
	assert.Equal(t, "pizza", poll.Options[0].Text)
	assert.Equal(t, "sushi", poll.Options[1].Text)
}

func TestPollLifecycle(t *testing.T) {
	s := newPollService()
	poll, err := s.CreatePoll("T", "u1", []string{"A", "B"})
	require.NoError(t, err)

	voted, err := s.Vote(poll.ID, poll.Options[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, voted.TotalVotes)

	_, err = s.ClosePoll(poll.ID, "u2")
	assert.ErrorIs(t, err, models.ErrUserNotOwner)

	closed, err := s.ClosePoll(poll.ID, "u1")
	require.NoError(t, err)
	assert.True(t, closed.IsClosed)

	_, err = s.Vote(poll.ID, poll.Options[0].ID)
	assert.ErrorIs(t, err, models.ErrPollClosed)

	reset, err := s.ResetPoll(poll.ID, "u1")
	require.NoError(t, err)
	assert.Zero(t, reset.TotalVotes)

	assert.ErrorIs(t, s.DeletePoll(poll.ID, "u2"), models.ErrUserNotOwner)
	require.NoError(t, s.DeletePoll(poll.ID, "u1"))

	_, err = s.GetPoll(poll.ID)
	assert.ErrorIs(t, err, models.ErrPollNotFound)
	_, err = s.Vote(poll.ID, poll.Options[0].ID)
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestListPolls_ByCreator(t *testing.T) {
	s := newPollService()
	_, err := s.CreatePoll("one", "u1", []string{"a"})
	require.NoError(t, err)
	_, err = s.CreatePoll("two", "u2", []string{"a"})
	require.NoError(t, err)

	mine := s.ListPolls("u1")
	require.Len(t, mine, 1)
	assert.Equal(t, "one", mine[0].Title)
	assert.Len(t, s.ListPolls(""), 2)
}
