package client

import (
	"sync"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

type outcome struct {
	env *protocol.Envelope
	err error
}

type pendingRequest struct {
	reqType string
	hook    func(*protocol.Envelope)
	done    chan outcome
}

// Correlator matches responses to outstanding requests by id. Ids start at
// 0, grow by one per request and are never handed out twice, even across
// reconnects.
type Correlator struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingRequest
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[int64]*pendingRequest)}
}

// Begin allocates the id of a new request of type reqType. The returned
// channel receives exactly one outcome, unless the request is discarded
// or never answered. hook, when set, sees a successful response on the
// receiving goroutine before any later frame is processed.
func (c *Correlator) Begin(reqType string, hook func(*protocol.Envelope)) (int64, <-chan outcome) {
	p := &pendingRequest{reqType: reqType, hook: hook, done: make(chan outcome, 1)}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.pending[id] = p
	c.mu.Unlock()

	return id, p.done
}

// Resolve settles the request env answers and reports whether there was
// one. The entry is removed before its outcome is delivered, so a
// duplicate response finds nothing.
func (c *Correlator) Resolve(env *protocol.Envelope) bool {
	if !env.HasID() {
		return false
	}
	id := *env.ID

	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	switch env.Type {
	case protocol.TypeError:
		var body protocol.ErrorPayload
		_ = env.Bind(&body)
		p.done <- outcome{err: &protocol.RemoteError{Message: body.Message}}
	case p.reqType:
		if p.hook != nil {
			p.hook(env)
		}
		p.done <- outcome{env: env}
	default:
		p.done <- outcome{err: &protocol.ProtocolMismatchError{ID: id, Expected: p.reqType, Got: env.Type}}
	}
	return true
}

// Discard forgets a request. Its id stays used.
func (c *Correlator) Discard(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending returns the number of requests still waiting for a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
