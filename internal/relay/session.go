package relay

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// Outbound queue per session. A full queue means the peer is not
	// draining; frames are dropped rather than stalling other sessions.
	sendQueueSize = 64

	writeWait = 10 * time.Second
)

// Conn is the slice of a websocket connection the relay needs.
// *websocket.Conn satisfies it; tests substitute a recorder.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Stats counts traffic both ways for one session.
type Stats struct {
	MessagesReceived int64 `json:"messagesReceived"`
	MessagesSent     int64 `json:"messagesSent"`
}

// =======================
// SESSION BASE
// =======================

// session holds the plumbing shared by viewer and agent sessions:
// the socket, activity bookkeeping and the outbound write pump.
type session struct {
	ID            string    `json:"id"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	ClientAddress string    `json:"clientAddress"`
	Stats         Stats     `json:"stats"`

	conn      Conn
	send      chan any
	closeOnce sync.Once
}

func newSession(prefix string, conn Conn, addr string) session {
	now := time.Now()
	return session{
		ID:            prefix + "-" + uuid.NewString(),
		ConnectedAt:   now,
		LastActivity:  now,
		ClientAddress: addr,
		conn:          conn,
		send:          make(chan any, sendQueueSize),
	}
}

// enqueue hands a frame to the write pump without ever blocking the
// caller. Returns false when the queue is full or already closed.
func (s *session) enqueue(v any) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case s.send <- v:
		return true
	default:
		log.Printf("relay: send queue full, dropping frame for %s", s.ID)
		return false
	}
}

// writePump drains the send queue onto the socket. Write errors are
// logged and swallowed; the read loop notices the dead socket and tears
// the session down. Runs in its own goroutine per session.
func (s *session) writePump() {
	for v := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(v); err != nil {
			log.Printf("relay: write to %s failed: %v", s.ID, err)
		}
	}
}

// shutdown closes the send queue and the socket. Safe to call more than
// once and safe to call while the write pump is mid-send.
func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.send)
		if err := s.conn.Close(); err != nil {
			log.Printf("relay: close %s: %v", s.ID, err)
		}
	})
}

// =======================
// VIEWER / AGENT
// =======================

// ViewerSession is a browser connection consuming monitoring data.
type ViewerSession struct {
	session
	Subscribed map[string]struct{} `json:"-"`
}

// AgentSession is a monitoring client on a watched host. HostKey is
// empty until the first snapshot identifies it, and sticky afterwards.
type AgentSession struct {
	session
	HostKey string `json:"hostKey,omitempty"`
}

func newViewerSession(conn Conn, addr string) *ViewerSession {
	return &ViewerSession{
		session:    newSession("fe", conn, addr),
		Subscribed: make(map[string]struct{}),
	}
}

func newAgentSession(conn Conn, addr string) *AgentSession {
	return &AgentSession{session: newSession("agent", conn, addr)}
}
