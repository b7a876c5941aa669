package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

const waitFor = 2 * time.Second

// fakeConn is an in-memory socket. respond, when set, sees every frame the
// client writes and may push frames back.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
	respond func(c *fakeConn, env *protocol.Envelope)

	mu      sync.Mutex
	written []*protocol.Envelope
}

func newFakeConn(respond func(*fakeConn, *protocol.Envelope)) *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 256),
		closed:  make(chan struct{}),
		respond: respond,
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, env)
	c.mu.Unlock()
	if c.respond != nil {
		c.respond(c, env)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(id *int64, p protocol.Payload) {
	data, err := protocol.Encode(id, p)
	if err != nil {
		panic(err)
	}
	c.inbound <- data
}

func (c *fakeConn) sent() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.written...)
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    bool
	dials   int
	conns   []*fakeConn
	respond func(*fakeConn, *protocol.Envelope)
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(d.respond)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock records timers and fires them only when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

func (c *fakeClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

// fire runs t's callback even if it was stopped, like a timer that raced
// its Stop.
func (c *fakeClock) fire(t *fakeTimer) {
	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()
	t.fn()
}

func newTestManager(t *testing.T, dialer *fakeDialer, clock *fakeClock) *ConnectionManager {
	t.Helper()
	m := NewConnectionManager("ws://test/ws", dialer, clock, NewBackoff(time.Second, 10*time.Second), func([]byte) {}, nil)
	t.Cleanup(func() { m.Close() })
	return m
}

// settle waits until every event posted to the loop so far was handled.
func settle(m *ConnectionManager) {
	ready := make(chan struct{})
	var once sync.Once
	cancel := m.OnStateChange(func(State) { once.Do(func() { close(ready) }) })
	<-ready
	cancel()
}

func waitState(t *testing.T, m *ConnectionManager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitFor, time.Millisecond)
}

func TestReconnectBackoffThroughManager(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	clock := &fakeClock{}
	m := newTestManager(t, dialer, clock)

	m.Connect()
	for i := 1; i <= 5; i++ {
		require.Eventually(t, func() bool { return clock.count() == i }, waitFor, time.Millisecond)
		if i < 5 {
			clock.fire(clock.timer(i - 1))
		}
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, clock.delays())

	dialer.setFail(false)
	clock.fire(clock.timer(4))
	waitState(t, m, Connected)

	dialer.last().Close()
	require.Eventually(t, func() bool { return clock.count() == 6 }, waitFor, time.Millisecond)
	assert.Equal(t, 2*time.Second, clock.delays()[5])
	assert.Equal(t, Disconnected, m.State())
}

func TestConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, &fakeClock{})

	m.Connect()
	m.Connect()
	m.Connect()
	waitState(t, m, Connected)
	m.Connect()
	settle(m)

	assert.Equal(t, 1, dialer.dialCount())
}

func TestOnlyOneReconnectTimerArmed(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	clock := &fakeClock{}
	m := newTestManager(t, dialer, clock)

	m.Connect()
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, time.Millisecond)
	stale := clock.timer(0)

	// a manual connect replaces the armed timer
	m.Connect()
	require.Eventually(t, func() bool { return clock.count() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, 1, clock.armed())
	dials := dialer.dialCount()

	clock.fire(stale)
	settle(m)
	assert.Equal(t, dials, dialer.dialCount(), "stale timer must not dial")
	assert.Equal(t, 1, clock.armed())
}

func TestObserverGetsCurrentStateAndTransitions(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, &fakeClock{})

	var mu sync.Mutex
	var seen []State
	cancel := m.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	snapshot := func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), seen...)
	}

	m.Connect()
	waitState(t, m, Connected)
	settle(m)
	assert.Equal(t, []State{Disconnected, Connecting, Connected}, snapshot())

	// a late observer still learns the state
	late := make(chan State, 1)
	m.OnStateChange(func(s State) {
		select {
		case late <- s:
		default:
		}
	})
	assert.Equal(t, Connected, <-late)

	cancel()
	dialer.last().Close()
	waitState(t, m, Disconnected)
	settle(m)
	assert.Len(t, snapshot(), 3)
}

func TestWriteRequiresConnection(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(t, dialer, &fakeClock{})

	assert.ErrorIs(t, m.Write([]byte(`{}`)), protocol.ErrNotConnected)

	m.Connect()
	waitState(t, m, Connected)
	data, err := protocol.Encode(protocol.ID(1), protocol.TimeRequest{})
	require.NoError(t, err)
	require.NoError(t, m.Write(data))
	assert.Len(t, dialer.last().sent(), 1)
}

func TestCloseStopsReconnecting(t *testing.T) {
	dialer := &fakeDialer{}
	clock := &fakeClock{}
	m := NewConnectionManager("ws://test/ws", dialer, clock, nil, func([]byte) {}, nil)

	m.Connect()
	waitState(t, m, Connected)
	conn := dialer.last()

	require.NoError(t, m.Close())
	assert.Equal(t, Disconnected, m.State())
	select {
	case <-conn.closed:
	default:
		t.Fatal("socket left open")
	}
	assert.Zero(t, clock.count())

	// calls after Close are harmless
	m.Connect()
	require.NoError(t, m.Close())
	got := make(chan State, 1)
	m.OnStateChange(func(s State) { got <- s })
	assert.Equal(t, Disconnected, <-got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
}
