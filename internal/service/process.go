package service

import (
	"sync"
	"time"
)

// Exit codes reported to the process supervisor.
const (
	ExitShutdown = 0
	ExitRestart  = 3
)

// ProcessController stops the server process on request. Both calls return
// immediately; the stop happens after the reply has had time to flush.
type ProcessController interface {
	Restart()
	Shutdown()
}

// SignalController turns restart and shutdown requests into an exit code
// on a channel that the server's main loop waits on. Only the first
// request counts.
type SignalController struct {
	grace time.Duration
	once  sync.Once
	exit  chan int
}

func NewSignalController(grace time.Duration) *SignalController {
	return &SignalController{grace: grace, exit: make(chan int, 1)}
}

func (c *SignalController) Restart()  { c.request(ExitRestart) }
func (c *SignalController) Shutdown() { c.request(ExitShutdown) }

// Requested delivers the exit code of the first request.
func (c *SignalController) Requested() <-chan int {
	return c.exit
}

func (c *SignalController) request(code int) {
	c.once.Do(func() {
		time.AfterFunc(c.grace, func() { c.exit <- code })
	})
}
