package client

import (
	"sync"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// Handler receives one server-pushed envelope.
type Handler func(env *protocol.Envelope)

// Subscription is the token returned by Subscribe.
type Subscription struct {
	d       *Dispatcher
	msgType string
	id      uint64
}

// Unsubscribe removes the handler. Further calls do nothing.
func (s *Subscription) Unsubscribe() {
	s.d.Unsubscribe(s)
}

type subscriber struct {
	id uint64
	fn Handler
}

// Dispatcher multicasts envelopes to the handlers subscribed to their type,
// in subscription order. Types nobody subscribed to are dropped.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]subscriber)}
}

func (d *Dispatcher) Subscribe(msgType string, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[msgType] = append(d.handlers[msgType], subscriber{id: d.nextID, fn: fn})
	return &Subscription{d: d, msgType: msgType, id: d.nextID}
}

func (d *Dispatcher) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[s.msgType]
	for i, sub := range list {
		if sub.id == s.id {
			// copy so a Dispatch iterating the old slice is unaffected
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, s.msgType)
			} else {
				d.handlers[s.msgType] = next
			}
			return
		}
	}
}

// Dispatch calls every handler of env's type and returns how many ran.
// Handlers may subscribe or unsubscribe while being called.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) int {
	d.mu.RLock()
	list := d.handlers[env.Type]
	d.mu.RUnlock()

	for _, sub := range list {
		sub.fn(env)
	}
	return len(list)
}

// Count returns the number of handlers subscribed to msgType.
func (d *Dispatcher) Count(msgType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[msgType])
}
