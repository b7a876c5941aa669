package handler

import (
	"context"
	"time"

	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

const TimeFormat = "2006-01-02 15:04:05"

// SystemHandler answers clock, echo and process control requests.
type SystemHandler struct {
	process service.ProcessController
	now     func() time.Time
}

func NewSystemHandler(process service.ProcessController) *SystemHandler {
	return &SystemHandler{process: process, now: time.Now}
}

func (h *SystemHandler) Register(r *Router) {
	r.Register(protocol.TypeTimeRequest, h.Time)
	r.Register(protocol.TypeTest, h.Test)
	r.Register(protocol.TypeRestartServer, h.Restart)
	r.Register(protocol.TypeShutdownServer, h.Shutdown)
}

// Time handles timeRequest
func (h *SystemHandler) Time(_ context.Context, req *Request) error {
	return req.Reply(protocol.TimeResponse{Time: h.now().Format(TimeFormat)})
}

// Test handles test
func (h *SystemHandler) Test(_ context.Context, req *Request) error {
	var p protocol.TestRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	return req.Reply(protocol.TestResponse{Message: "Test successful", Echo: p.Message})
}

// Restart handles restartServer. The reply goes out before the stop begins.
func (h *SystemHandler) Restart(_ context.Context, req *Request) error {
	if err := req.Reply(protocol.ServerStatus{Type: protocol.TypeRestartServer, Status: "Restarting..."}); err != nil {
		return err
	}
	h.process.Restart()
	return nil
}

// Shutdown handles shutdownServer
func (h *SystemHandler) Shutdown(_ context.Context, req *Request) error {
	if err := req.Reply(protocol.ServerStatus{Type: protocol.TypeShutdownServer, Status: "Shutting down..."}); err != nil {
		return err
	}
	h.process.Shutdown()
	return nil
}
