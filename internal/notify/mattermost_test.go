package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/repository"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPoster struct {
	mu    sync.Mutex
	posts []*model.Post
	fail  bool
}

func (p *recordingPoster) CreatePost(post *model.Post) (*model.Post, *model.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post)
	if p.fail {
		return nil, &model.Response{StatusCode: 500}, errors.New("mattermost is down")
	}
	return post, &model.Response{StatusCode: 201}, nil
}

func (p *recordingPoster) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.posts))
	for i, post := range p.posts {
		out[i] = post.Message
	}
	return out
}

func start(t *testing.T, poster *recordingPoster) (*repository.PollRepository, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.New(broadcast.DefaultBacklog, zap.NewNop())
	a := NewAnnouncer(poster, "channel", hub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, a.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return hub.Subscribers(broadcast.AllPolls) == 1 }, time.Second, 5*time.Millisecond)
	return repository.NewPollRepository(hub, zap.NewNop()), hub
}

func TestAnnouncer_PostsLifecycle(t *testing.T) {
	poster := &recordingPoster{}
	repo, _ := start(t, poster)

	poll, err := repo.CreatePoll("Lunch", "u1", []string{"pizza", "sushi"})
	require.NoError(t, err)
	_, err = repo.Vote(poll.ID, poll.Options[1].ID)
	require.NoError(t, err)
	_, err = repo.ClosePoll(poll.ID, "u1")
	require.NoError(t, err)
	_, err = repo.ResetPoll(poll.ID, "u1")
	require.NoError(t, err)
	require.NoError(t, repo.DeletePoll(poll.ID, "u1"))

	require.Eventually(t, func() bool { return len(poster.messages()) == 3 }, time.Second, 5*time.Millisecond)
	messages := poster.messages()

	assert.Contains(t, messages[0], "**Title**: Lunch")
	assert.Contains(t, messages[0], "  [1] *pizza*")
	assert.Contains(t, messages[1], "  [2] votes: **1** (*sushi*)")
	assert.Contains(t, messages[1], "  [1] votes: **0** (*pizza*)")
	assert.Equal(t, "**Poll deleted**: "+poll.ID, messages[2])

	for _, post := range poster.posts {
		assert.Equal(t, "channel", post.ChannelId)
	}
}

func TestAnnouncer_SurvivesPostFailures(t *testing.T) {
	poster := &recordingPoster{fail: true}
	repo, _ := start(t, poster)

	_, err := repo.CreatePoll("one", "u1", []string{"a"})
	require.NoError(t, err)
	_, err = repo.CreatePoll("two", "u1", []string{"a"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(poster.messages()) == 2 }, time.Second, 5*time.Millisecond)
}
