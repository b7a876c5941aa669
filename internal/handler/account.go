package handler

import (
	"context"
	"errors"

	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// AccountHandler serves accounts, secrets and the active device.
type AccountHandler struct {
	accounts *service.AccountService
	secrets  *service.SecretService
	devices  *service.DeviceService
}

func NewAccountHandler(accounts *service.AccountService, secrets *service.SecretService, devices *service.DeviceService) *AccountHandler {
	return &AccountHandler{accounts: accounts, secrets: secrets, devices: devices}
}

func (h *AccountHandler) Register(r *Router) {
	r.Register(protocol.TypeGetUserAccounts, h.Accounts)
	r.Register(protocol.TypeGetSecret, h.Secret)
	r.Register(protocol.TypeSwitchDevice, h.SwitchDevice)
}

// Accounts handles getUserAccounts
func (h *AccountHandler) Accounts(_ context.Context, req *Request) error {
	return req.Reply(protocol.GetUserAccountsResponse{Accounts: h.accounts.List()})
}

// Secret handles getSecret
func (h *AccountHandler) Secret(_ context.Context, req *Request) error {
	var p protocol.GetSecretRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	value, err := h.secrets.Get(p.Name)
	if err != nil {
		if errors.Is(err, service.ErrSecretNotFound) {
			return errors.New("Secret not found")
		}
		return err
	}
	return req.Reply(protocol.GetSecretResponse{Name: p.Name, Value: value})
}

// SwitchDevice handles switchDevice
func (h *AccountHandler) SwitchDevice(_ context.Context, req *Request) error {
	var p protocol.SwitchDeviceRequest
	if err := req.Bind(&p); err != nil {
		return err
	}
	previous, err := h.devices.Switch(p.Device)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDevice) {
			return errors.New("Unknown device")
		}
		return err
	}
	return req.Reply(protocol.SwitchDeviceResponse{Device: p.Device, Previous: previous})
}
