package websocket

import (
	"errors"
	"sync"
	"time"

	fws "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Conn is the subset of a websocket connection a session needs.
// *fws.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// MessageFunc handles one inbound text frame. It runs on the session's
// read goroutine, so frames of one session are handled in order.
type MessageFunc func(s *Session, data []byte)

// Session is one connected client.
type Session struct {
	ID         string
	RemoteAddr string

	conn Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSession wraps a connection.
func NewSession(conn Conn, remoteAddr string) *Session {
	return &Session{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
	}
}

// Open reports whether the session still accepts outbound messages.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) deliver(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Serve runs a session until its connection fails: it registers the
// session, pumps outbound messages with keep-alive pings, and hands every
// inbound text frame to onMessage.
func (h *Hub) Serve(conn Conn, remoteAddr string, onMessage MessageFunc) {
	s := NewSession(conn, remoteAddr)
	if err := h.Register(s); err != nil {
		conn.Close()
		return
	}
	logger.Info("Session connected", zap.String("session", s.ID), zap.String("remote", remoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	s.readPump(onMessage)

	// Unregistering closes the outbound queue, which stops the writer.
	h.Unregister(s)
	<-writerDone
	conn.Close()
	logger.Info("Session disconnected", zap.String("session", s.ID))
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(fws.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(fws.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(fws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(onMessage MessageFunc) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if fws.IsUnexpectedCloseError(err, fws.CloseGoingAway, fws.CloseNormalClosure, fws.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != fws.TextMessage {
			continue
		}
		onMessage(s, message)
	}
}
