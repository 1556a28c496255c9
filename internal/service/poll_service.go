package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jaam8/polling_server/internal/models"
	"github.com/jaam8/polling_server/internal/repository"
	"go.uber.org/zap"
)

type PollService struct {
	r *repository.PollRepository
	l *zap.Logger
}

func NewPollService(r *repository.PollRepository, l *zap.Logger) *PollService {
	return &PollService{
		r: r,
		l: l,
	}
}

func (s *PollService) CreatePoll(title, creatorID string, optionsRaw []string) (*models.Poll, error) {
	s.l.Debug("creating poll",
		zap.String("title", title),
		zap.String("creator_id", creatorID),
		zap.Strings("options", optionsRaw))
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.ErrTitleIsEmpty
	}
	if len(optionsRaw) < 1 {
		return nil, models.ErrNotEnoughOptions
	}
	options := make([]string, len(optionsRaw))
	for i, option := range optionsRaw {
		options[i] = strings.TrimSpace(option)
		if options[i] == "" {
			return nil, models.ErrOptionIsEmpty
		}
	}

	poll, err := s.r.CreatePoll(title, creatorID, options)
	if err != nil {
		if errors.Is(err, models.ErrNotEnoughOptions) {
			return nil, err
		}
		s.l.Error("failed to create poll", zap.Error(err))
		return nil, fmt.Errorf("service: failed to create poll: %w", err)
	}
	s.l.Info("poll created",
		zap.String("poll_id", poll.ID),
		zap.String("creator_id", creatorID),
		zap.Int("options", len(poll.Options)))
	return poll, nil
}

func (s *PollService) GetPoll(pollID string) (*models.Poll, error) {
	poll, err := s.r.GetPoll(pollID)
	if err != nil {
		if errors.Is(err, models.ErrPollNotFound) {
			return nil, err
		}
		s.l.Error("error getting poll", zap.Error(err))
		return nil, fmt.Errorf("service: failed to get poll: %w", err)
	}
	return poll, nil
}

func (s *PollService) ListPolls(creatorID string) []*models.Poll {
	return s.r.ListPolls(creatorID)
}

func (s *PollService) Vote(pollID, optionID string) (*models.Poll, error) {
	poll, err := s.r.Vote(pollID, optionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrPollNotFound):
			return nil, err
		case errors.Is(err, models.ErrOptionNotFound):
			return nil, err
		case errors.Is(err, models.ErrPollClosed):
			return nil, err
		default:
			s.l.Error("failed to vote", zap.Error(err))
			return nil, fmt.Errorf("service: failed to vote: %w", err)
		}
	}
	return poll, nil
}

func (s *PollService) ClosePoll(pollID, userID string) (*models.Poll, error) {
	poll, err := s.r.ClosePoll(pollID, userID)
	if err != nil {
		return nil, s.ownerError("close", err)
	}
	s.l.Info("poll closed", zap.String("poll_id", pollID), zap.Int("total_votes", poll.TotalVotes))
	return poll, nil
}

func (s *PollService) ResetPoll(pollID, userID string) (*models.Poll, error) {
	poll, err := s.r.ResetPoll(pollID, userID)
	if err != nil {
		return nil, s.ownerError("reset", err)
	}
	s.l.Info("poll reset", zap.String("poll_id", pollID))
	return poll, nil
}

func (s *PollService) DeletePoll(pollID, userID string) error {
	if err := s.r.DeletePoll(pollID, userID); err != nil {
		return s.ownerError("delete", err)
	}
	s.l.Info("poll deleted", zap.String("poll_id", pollID))
	return nil
}

func (s *PollService) ownerError(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrPollNotFound):
		return err
	case errors.Is(err, models.ErrUserNotOwner):
		return err
	default:
		s.l.Error("failed to "+op+" poll", zap.Error(err))
		return fmt.Errorf("service: failed to %s poll: %w", op, err)
	}
}
