package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/models"
	"github.com/mattermost/mattermost-server/v6/model"
	"go.uber.org/zap"
)

type Poster interface {
	CreatePost(post *model.Post) (*model.Post, *model.Response, error)
}

// Announcer mirrors poll lifecycle changes into a Mattermost channel.
// Votes and resets are not announced.
type Announcer struct {
	client    Poster
	channelID string
	hub       *broadcast.Hub
	l         *zap.Logger
}

func NewAnnouncer(client Poster, channelID string, hub *broadcast.Hub, l *zap.Logger) *Announcer {
	return &Announcer{
		client:    client,
		channelID: channelID,
		hub:       hub,
		l:         l,
	}
}

func NewClient(url, token string) *model.Client4 {
	client := model.NewAPIv4Client(url)
	client.SetToken(token)
	return client
}

// Run posts until ctx is done. Post failures are logged and skipped.
func (a *Announcer) Run(ctx context.Context) error {
	sub := a.hub.Subscribe(broadcast.AllPolls)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			message, ok := render(ev)
			if !ok {
				continue
			}
			if err := a.SendMsg(message); err != nil {
				a.l.Error("failed to announce poll event",
					zap.String("poll_id", ev.PollID),
					zap.String("kind", string(ev.Kind)),
					zap.Error(err))
			}
		}
	}
}

func (a *Announcer) SendMsg(message string) error {
	post := &model.Post{
		ChannelId: a.channelID,
		Message:   message,
	}
	_, resp, err := a.client.CreatePost(post)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	a.l.Debug("send new message",
		zap.String("channel_id", a.channelID),
		zap.String("message", message),
		zap.Int("status_code", status))
	return err
}

func render(ev models.PollEvent) (string, bool) {
	switch ev.Kind {
	case models.EventCreated:
		var b strings.Builder
		fmt.Fprintf(&b, "**Poll ID**: %s\n**Title**: %s\n**Options**:\n", ev.Poll.ID, ev.Poll.Title)
		for i, option := range ev.Poll.Options {
			fmt.Fprintf(&b, "  [%d] *%s*\n", i+1, option.Text)
		}
		return b.String(), true
	case models.EventClosed:
		var b strings.Builder
		fmt.Fprintf(&b, "**Poll closed**: %s\n**Title**: %s\n", ev.Poll.ID, ev.Poll.Title)
		for i, option := range ev.Poll.Options {
			fmt.Fprintf(&b, "  [%d] votes: **%d** (*%s*)\n", i+1, option.Votes, option.Text)
		}
		return b.String(), true
	case models.EventDeleted:
		return fmt.Sprintf("**Poll deleted**: %s", ev.PollID), true
	default:
		return "", false
	}
}
