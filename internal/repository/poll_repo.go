package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(event models.PollEvent)
}

// PollRepository owns every poll. Callers only ever see clones.
//
// Mutations hand the store lock over to pubMu before publishing, so events for
// a poll leave in mutation order while the store lock itself is never held
// during Publish.
type PollRepository struct {
	mu    sync.RWMutex
	pubMu sync.Mutex
	polls map[string]*models.Poll
	order []string
	hub   Publisher
	l     *zap.Logger
	now   func() time.Time
}

func NewPollRepository(hub Publisher, l *zap.Logger) *PollRepository {
	return &PollRepository{
		polls: make(map[string]*models.Poll),
		hub:   hub,
		l:     l,
		now:   time.Now,
	}
}

func (r *PollRepository) CreatePoll(title, creatorID string, optionsText []string) (*models.Poll, error) {
	if len(optionsText) == 0 {
		return nil, models.ErrNotEnoughOptions
	}
	options := make([]models.PollOption, len(optionsText))
	for i, text := range optionsText {
		options[i] = models.PollOption{
			ID:   uuid.NewString(),
			Text: text,
		}
	}
	poll := &models.Poll{
		ID:        uuid.NewString(),
		Title:     title,
		CreatorID: creatorID,
		Options:   options,
		CreatedAt: r.now().UTC(),
		Version:   1,
	}
	r.l.Debug("creating poll", zap.Any("poll", poll))

	r.mu.Lock()
	r.polls[poll.ID] = poll
	r.order = append(r.order, poll.ID)
	snapshot := poll.Clone()
	r.publishUnlock(models.EventCreated, snapshot)

	return snapshot.Clone(), nil
}

func (r *PollRepository) GetPoll(pollID string) (*models.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	poll, ok := r.polls[pollID]
	if !ok {
		r.l.Debug("poll not found", zap.String("poll_id", pollID))
		return nil, models.ErrPollNotFound
	}
	return poll.Clone(), nil
}

// ListPolls returns polls in creation order. An empty creatorID lists all polls.
func (r *PollRepository) ListPolls(creatorID string) []*models.Poll {
	r.mu.RLock()
	defer r.mu.RUnlock()
	polls := make([]*models.Poll, 0, len(r.order))
	for _, id := range r.order {
		poll := r.polls[id]
		if creatorID != "" && poll.CreatorID != creatorID {
			continue
		}
		polls = append(polls, poll.Clone())
	}
	return polls
}

func (r *PollRepository) Vote(pollID, optionID string) (*models.Poll, error) {
	r.mu.Lock()
	poll, ok := r.polls[pollID]
	if !ok {
		r.mu.Unlock()
		r.l.Debug("poll not found", zap.String("poll_id", pollID))
		return nil, models.ErrPollNotFound
	}
	if poll.IsClosed {
		r.mu.Unlock()
		r.l.Debug("poll is closed", zap.String("poll_id", pollID))
		return nil, models.ErrPollClosed
	}
	idx := poll.Option(optionID)
	if idx < 0 {
		r.mu.Unlock()
		r.l.Debug("option not found",
			zap.String("poll_id", pollID),
			zap.String("option_id", optionID))
		return nil, models.ErrOptionNotFound
	}
	poll.Options[idx].Votes++
	poll.Version++
	snapshot := poll.Clone()
	r.l.Debug("updated votes",
		zap.String("poll_id", pollID),
		zap.String("option_id", optionID),
		zap.Int("votes", poll.Options[idx].Votes))
	r.publishUnlock(models.EventVoted, snapshot)

	return snapshot.Clone(), nil
}

// ClosePoll is idempotent for the creator. Closing a closed poll returns it
// unchanged and publishes nothing.
func (r *PollRepository) ClosePoll(pollID, userID string) (*models.Poll, error) {
	return r.mutateOwned(pollID, userID, models.EventClosed, func(p *models.Poll) bool {
		if p.IsClosed {
			return false
		}
		p.IsClosed = true
		return true
	})
}

func (r *PollRepository) ResetPoll(pollID, userID string) (*models.Poll, error) {
	return r.mutateOwned(pollID, userID, models.EventReset, func(p *models.Poll) bool {
		for i := range p.Options {
			p.Options[i].Votes = 0
		}
		return true
	})
}

func (r *PollRepository) DeletePoll(pollID, userID string) error {
	r.mu.Lock()
	poll, ok := r.polls[pollID]
	if !ok {
		r.mu.Unlock()
		r.l.Debug("poll not found", zap.String("poll_id", pollID))
		return models.ErrPollNotFound
	}
	if poll.CreatorID != userID {
		r.mu.Unlock()
		r.l.Debug("user is not the owner of the poll",
			zap.String("poll_id", pollID),
			zap.String("user_id", userID))
		return models.ErrUserNotOwner
	}
	delete(r.polls, pollID)
	for i, id := range r.order {
		if id == pollID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.pubMu.Lock()
	r.mu.Unlock()
	r.hub.Publish(models.PollEvent{Kind: models.EventDeleted, PollID: pollID})
	r.pubMu.Unlock()
	return nil
}

func (r *PollRepository) mutateOwned(pollID, userID string, kind models.EventKind, mutate func(*models.Poll) bool) (*models.Poll, error) {
	r.mu.Lock()
	poll, ok := r.polls[pollID]
	if !ok {
		r.mu.Unlock()
		r.l.Debug("poll not found", zap.String("poll_id", pollID))
		return nil, models.ErrPollNotFound
	}
	if poll.CreatorID != userID {
		r.mu.Unlock()
		r.l.Debug("user is not the owner of the poll",
			zap.String("poll_id", pollID),
			zap.String("user_id", userID))
		return nil, models.ErrUserNotOwner
	}
	if !mutate(poll) {
		snapshot := poll.Clone()
		r.mu.Unlock()
		r.l.Debug("poll unchanged",
			zap.String("poll_id", pollID),
			zap.String("kind", string(kind)))
		return snapshot, nil
	}
	poll.Version++
	snapshot := poll.Clone()
	r.publishUnlock(kind, snapshot)

	return snapshot.Clone(), nil
}

// publishUnlock must be called with r.mu held for writing; it releases it.
func (r *PollRepository) publishUnlock(kind models.EventKind, snapshot *models.Poll) {
	r.pubMu.Lock()
	r.mu.Unlock()
	r.hub.Publish(models.PollEvent{Kind: kind, PollID: snapshot.ID, Poll: snapshot})
	r.pubMu.Unlock()
}
