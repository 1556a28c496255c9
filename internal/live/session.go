package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaam8/polling_server/internal/broadcast"
	"github.com/jaam8/polling_server/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var (
	errPollDeleted  = errors.New("live: poll deleted")
	errStreamClosed = errors.New("live: event stream closed")
)

type Polls interface {
	GetPoll(pollID string) (*models.Poll, error)
	Vote(pollID, optionID string) (*models.Poll, error)
}

// Session serves one socket bound to one poll. Inbound commands and outbound
// pushes run side by side; when either stops the other is cancelled.
type Session struct {
	conn   *websocket.Conn
	pollID string
	polls  Polls
	hub    *broadcast.Hub
	l      *zap.Logger

	wmu sync.Mutex
}

func NewSession(conn *websocket.Conn, pollID string, polls Polls, hub *broadcast.Hub, l *zap.Logger) *Session {
	return &Session{
		conn:   conn,
		pollID: pollID,
		polls:  polls,
		hub:    hub,
		l:      l.With(zap.String("poll_id", pollID), zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Run blocks until the socket is closed, the poll is deleted or ctx is done.
// The hub subscription is released and the socket closed before it returns.
func (s *Session) Run(ctx context.Context) error {
	sub := s.hub.Subscribe(s.pollID)
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.readLoop(gctx)
	})
	g.Go(func() error {
		return s.writeLoop(gctx, sub)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = s.conn.Close()
		return nil
	})

	err := g.Wait()
	s.l.Debug("socket session ended", zap.Error(err))
	if errors.Is(err, errPollDeleted) || isClosure(err) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = s.handle(data); err != nil {
			return err
		}
	}
}

func (s *Session) handle(data []byte) error {
	var msg models.WsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.l.Warn("malformed socket message", zap.Error(err))
		return nil
	}
	switch msg.Type {
	case models.WsSubscribe:
		poll, err := s.polls.GetPoll(msg.PollID)
		if err != nil {
			s.l.Debug("subscribe to unknown poll", zap.String("target", msg.PollID), zap.Error(err))
			return nil
		}
		return s.send(models.WsMessage{Type: models.WsPollUpdate, PollID: poll.ID, Poll: poll})
	case models.WsVote:
		pollID := msg.PollID
		if pollID == "" {
			pollID = s.pollID
		}
		if _, err := s.polls.Vote(pollID, msg.OptionID); err != nil {
			s.l.Debug("socket vote rejected",
				zap.String("target", pollID),
				zap.String("option_id", msg.OptionID),
				zap.Error(err))
		}
		return nil
	default:
		s.l.Warn("unknown socket message", zap.String("type", string(msg.Type)))
		return nil
	}
}

func (s *Session) writeLoop(ctx context.Context, sub *broadcast.Subscription) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return errStreamClosed
			}
			if ev.PollID != s.pollID {
				continue
			}
			if ev.Kind == models.EventDeleted {
				if err := s.send(models.WsMessage{Type: models.WsPollDeleted, PollID: ev.PollID}); err != nil {
					return err
				}
				s.closeNormal("poll deleted")
				return errPollDeleted
			}
			if err := s.send(models.WsMessage{Type: models.WsPollUpdate, PollID: ev.PollID, Poll: ev.Poll}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Session) send(msg models.WsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("live: failed to encode %s: %w", msg.Type, err)
	}
	return s.write(websocket.TextMessage, data)
}

func (s *Session) write(messageType int, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) closeNormal(reason string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.l.Debug("failed to send close frame", zap.Error(err))
	}
}

func isClosure(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
