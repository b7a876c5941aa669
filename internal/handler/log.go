package handler

import (
	"context"

	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

type LogHandler struct {
	logs *service.LogService
}

func NewLogHandler(logs *service.LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

func (h *LogHandler) Register(r *Router) {
	r.Register(protocol.TypeDownloadLog, h.Download)
}

// Download handles downloadLog
func (h *LogHandler) Download(_ context.Context, req *Request) error {
	return req.Reply(h.logs.Download())
}
