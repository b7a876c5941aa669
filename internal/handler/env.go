package handler

import (
	"context"

	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

type EnvHandler struct {
	service *service.EnvService
}

func NewEnvHandler(svc *service.EnvService) *EnvHandler {
	return &EnvHandler{service: svc}
}

func (h *EnvHandler) Register(r *Router) {
	r.Register(protocol.TypeGetEnvValues, h.Values)
	r.Register(protocol.TypeSetEnvValue, h.Set)
}

// Values handles getEnvValues
func (h *EnvHandler) Values(ctx context.Context, req *Request) error {
	values, err := h.service.Values(ctx)
	if err != nil {
		return err
	}
	return req.Reply(protocol.GetEnvValuesResponse{Values: values})
}

// Set handles setEnvValue
func (h *EnvHandler) Set(ctx context.Context, req *Request) error {
	var p protocol.SetEnvValueRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	if err := h.service.Set(ctx, p.Key, p.Value); err != nil {
		return err
	}
	return req.Reply(protocol.SetEnvValueResponse{Key: p.Key, Value: p.Value, Success: true})
}
