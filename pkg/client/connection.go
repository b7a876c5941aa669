package client

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// State is the connection state seen by observers.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// Conn is an open websocket. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections for a ConnectionManager.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules reconnect attempts.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type observer struct {
	id uint64
	fn func(State)
}

// ConnectionManager owns the socket. It moves between Disconnected,
// Connecting and Connected and reconnects with capped exponential backoff
// for as long as it is open.
//
// Transitions are applied one at a time by an event loop, which is also
// where observers run. Observers must not call Close.
type ConnectionManager struct {
	url     string
	dialer  Dialer
	clock   Clock
	backoff *Backoff
	onFrame func([]byte)
	log     *zap.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	writeMu sync.Mutex

	observerSeq atomic.Uint64

	// event loop only
	observers  []observer
	gen        int
	timer      Timer
	timerSeq   int
	cancelDial context.CancelFunc
	closed     bool

	events *mailbox
	done   chan struct{}
}

// NewConnectionManager creates a manager in the Disconnected state.
// onFrame receives every inbound frame, in order, on the reading goroutine.
func NewConnectionManager(url string, dialer Dialer, clock Clock, backoff *Backoff, onFrame func([]byte), log *zap.Logger) *ConnectionManager {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if backoff == nil {
		backoff = NewBackoff(DefaultBaseDelay, DefaultMaxDelay)
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &ConnectionManager{
		url:     url,
		dialer:  dialer,
		clock:   clock,
		backoff: backoff,
		onFrame: onFrame,
		log:     log,
		events:  newMailbox(),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Connect starts connecting. It does nothing while Connecting or Connected.
func (m *ConnectionManager) Connect() {
	m.events.post(m.connect)
}

// State returns the current state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn for every future transition. fn is first
// called with the state current at registration. The returned func
// unregisters it.
func (m *ConnectionManager) OnStateChange(fn func(State)) (cancel func()) {
	id := m.observerSeq.Add(1)
	if !m.events.post(func() {
		m.observers = append(m.observers, observer{id: id, fn: fn})
		fn(m.State())
	}) {
		fn(Disconnected)
	}
	return func() {
		m.events.post(func() {
			for i, o := range m.observers {
				if o.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Write sends one text frame. It fails with protocol.ErrNotConnected
// unless the manager is Connected.
func (m *ConnectionManager) Write(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected || conn == nil {
		return protocol.ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops reconnecting, closes the socket and waits for the event loop
// to exit.
func (m *ConnectionManager) Close() error {
	if m.events.post(m.shutdown) {
		<-m.done
	}
	return nil
}

func (m *ConnectionManager) run() {
	defer close(m.done)
	for range m.events.wake {
		for _, fn := range m.events.drain() {
			fn()
		}
		if m.closed {
			return
		}
	}
}

func (m *ConnectionManager) connect() {
	if m.closed || m.State() != Disconnected {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.setState(Connecting, nil)

	go func() {
		conn, err := m.dialer.Dial(ctx, m.url)
		if !m.events.post(func() { m.dialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *ConnectionManager) dialed(gen int, conn Conn, err error) {
	if gen != m.gen || m.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial()
	m.cancelDial = nil

	if err != nil {
		m.log.Debug("dial failed", zap.String("url", m.url), zap.Error(err))
		m.setState(Disconnected, nil)
		m.scheduleReconnect()
		return
	}

	m.backoff.Reset()
	m.setState(Connected, conn)
	go m.read(gen, conn)
}

func (m *ConnectionManager) read(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.events.post(func() { m.dropped(gen, err) })
			return
		}
		m.onFrame(data)
	}
}

func (m *ConnectionManager) dropped(gen int, err error) {
	if gen != m.gen || m.State() != Connected {
		return
	}
	m.log.Debug("connection lost", zap.String("url", m.url), zap.Error(err))
	m.setState(Disconnected, nil)
	m.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless one is already armed.
func (m *ConnectionManager) scheduleReconnect() {
	if m.closed || m.timer != nil {
		return
	}
	delay := m.backoff.Next()
	m.timerSeq++
	seq := m.timerSeq
	m.log.Debug("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", m.backoff.Attempts()))

	m.timer = m.clock.AfterFunc(delay, func() {
		m.events.post(func() {
			if seq != m.timerSeq || m.timer == nil {
				return
			}
			m.timer = nil
			m.connect()
		})
	})
}

func (m *ConnectionManager) shutdown() {
	m.closed = true
	m.events.close()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.setState(Disconnected, nil)
	m.observers = nil
}

// setState records a transition and notifies observers. Replacing the
// connection closes the previous one.
func (m *ConnectionManager) setState(s State, conn Conn) {
	m.mu.Lock()
	prev, old := m.state, m.conn
	m.state, m.conn = s, conn
	m.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
	if prev == s {
		return
	}
	for _, o := range m.observers {
		o.fn(s)
	}
}

// mailbox is an unbounded queue of loop events. Posting never blocks.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (b *mailbox) post(fn func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

func (b *mailbox) drain() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

func (b *mailbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
