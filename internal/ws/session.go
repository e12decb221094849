package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
)

// ErrBufferFull is returned when a session's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// session is one WebSocket connection bound to a diagram room. It implements
// room.Client: Send serializes synchronously and only queues the bytes, the
// write pump drains the queue.
type session struct {
	id        string
	diagramID string
	user      domain.Identity
	joinedAt  time.Time

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newSession(id, diagramID string, user domain.Identity, conn *websocket.Conn) *session {
	return &session{
		id:        id,
		diagramID: diagramID,
		user:      user,
		joinedAt:  time.Now(),
		conn:      conn,
		send:      make(chan []byte, 256),
	}
}

func (s *session) SessionID() string     { return s.id }
func (s *session) User() domain.Identity { return s.user }
func (s *session) JoinedAt() time.Time   { return s.joinedAt }

// Send marshals v and queues it for the write pump. A full buffer drops the
// message instead of blocking the caller: a slow reader must never stall the
// room that is fanning out under its lock.
func (s *session) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// closeSend closes the send channel exactly once, releasing the write pump.
func (s *session) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}
