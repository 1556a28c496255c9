package models

import (
	"errors"
	"time"
)

var (
	ErrPollNotFound     = errors.New("poll is not found")
	ErrOptionNotFound   = errors.New("option is not found")
	ErrPollClosed       = errors.New("poll is closed")
	ErrUserNotOwner     = errors.New("user is not the owner of the poll")
	ErrTitleIsEmpty     = errors.New("title is empty")
	ErrOptionIsEmpty    = errors.New("option is empty")
	ErrNotEnoughOptions = errors.New("the number of options should be at least 1")
)

type Poll struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	CreatorID  string       `json:"creator_id"`
	Options    []PollOption `json:"options"`
	CreatedAt  time.Time    `json:"created_at"`
	IsClosed   bool         `json:"is_closed"`
	TotalVotes int          `json:"total_votes"`
	// Version grows by one on every mutation, starting at 1 on creation.
	Version uint64 `json:"version"`
}

type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Clone returns a deep copy with TotalVotes recomputed.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = make([]PollOption, len(p.Options))
	copy(c.Options, p.Options)
	c.TotalVotes = 0
	for _, o := range c.Options {
		c.TotalVotes += o.Votes
	}
	return &c
}

// Option returns the index of the option with the given id or -1.
func (p *Poll) Option(optionID string) int {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return i
		}
	}
	return -1
}

type EventKind string

const (
	EventCreated EventKind = "created"
	EventVoted   EventKind = "voted"
	EventClosed  EventKind = "closed"
	EventReset   EventKind = "reset"
	EventDeleted EventKind = "deleted"
)

// PollEvent is what the hub fans out. Poll is nil for EventDeleted.
type PollEvent struct {
	Kind   EventKind
	PollID string
	Poll   *Poll
}

type CreatePollRequest struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

type VoteRequest struct {
	OptionID string `json:"option_id"`
}
