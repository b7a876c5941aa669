package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// ErrHubClosed is returned for work submitted after Run has returned.
var ErrHubClosed = errors.New("hub closed")

// Hub is the registry of open sessions. Membership changes and broadcasts
// are all applied by the Run loop, so a broadcast never iterates a set
// that is being modified.
type Hub struct {
	sessions map[*Session]struct{}
	mu       sync.RWMutex

	register   chan *Session
	unregister chan *Session
	broadcast  chan []byte
	done       chan struct{}

	// ids of server-initiated envelopes
	lastID atomic.Int64
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[*Session]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is done. Sessions
// still registered at that point are closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for s := range h.sessions {
			delete(h.sessions, s)
			s.shutdown()
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			h.mu.Unlock()

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				s.shutdown()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for s := range h.sessions {
				if err := s.deliver(msg); errors.Is(err, errSendBufferFull) {
					// A consumer this far behind is dropped; its read pump
					// unregisters it once the connection is gone.
					s.conn.Close()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s *Session) error {
	select {
	case h.register <- s:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister removes a session and closes its outbound queue.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
		s.shutdown()
	}
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// NextID allocates the id of a server-initiated envelope. Ids are
// process-wide, start at 1 and are never reused.
func (h *Hub) NextID() int64 {
	return h.lastID.Add(1)
}

// Broadcast queues env for every open session. Sessions that are closing
// are skipped silently.
func (h *Hub) Broadcast(env *protocol.Envelope) error {
	data, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Publish broadcasts p under a freshly allocated id and returns that id.
func (h *Hub) Publish(p protocol.Payload) (int64, error) {
	id := h.NextID()
	env, err := protocol.NewEnvelope(protocol.ID(id), p)
	if err != nil {
		return id, err
	}
	return id, h.Broadcast(env)
}

// Send queues p for a single session. It is used for correlated replies,
// where id echoes the request id.
func (h *Hub) Send(s *Session, id *int64, p protocol.Payload) error {
	data, err := protocol.Encode(id, p)
	if err != nil {
		return err
	}
	return s.deliver(data)
}
