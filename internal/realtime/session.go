package realtime

import (
	"sync"

	"github.com/medisched/medisched/internal/platform/auth"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one authenticated client connection.
type Session struct {
	ID       string
	Identity auth.Identity

	conn Conn
	send chan []byte

	// rooms is the set of joined topics; guarded by the hub mutex.
	rooms map[string]struct{}

	teardown sync.Once
}

const sendBufferSize = 256

func newSession(id string, identity auth.Identity, conn Conn) *Session {
	return &Session{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		rooms:    make(map[string]struct{}),
	}
}

// Receive pops the next queued frame, for tests that inspect delivery.
func (s *Session) Receive() ([]byte, bool) {
	select {
	case frame, ok := <-s.send:
		return frame, ok
	default:
		return nil, false
	}
}
