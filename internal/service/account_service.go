package service

import (
	"errors"
	"slices"
	"sync"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrUnknownDevice  = errors.New("unknown device")
)

// AccountService lists the configured user accounts.
type AccountService struct {
	accounts []protocol.Account
}

func NewAccountService(accounts []protocol.Account) *AccountService {
	return &AccountService{accounts: slices.Clone(accounts)}
}

func (s *AccountService) List() []protocol.Account {
	if s.accounts == nil {
		return []protocol.Account{}
	}
	return slices.Clone(s.accounts)
}

// SecretService resolves named secrets from configuration.
type SecretService struct {
	secrets map[string]string
}

func NewSecretService(secrets map[string]string) *SecretService {
	return &SecretService{secrets: secrets}
}

func (s *SecretService) Get(name string) (string, error) {
	v, ok := s.secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

// DeviceService tracks the active output device.
type DeviceService struct {
	mu      sync.Mutex
	devices []string
	current string
}

// NewDeviceService starts on the first configured device. An empty device
// list accepts any name.
func NewDeviceService(devices []string) *DeviceService {
	s := &DeviceService{devices: slices.Clone(devices)}
	if len(devices) > 0 {
		s.current = devices[0]
	}
	return s
}

// Switch makes device current and returns the one it replaced.
func (s *DeviceService) Switch(device string) (previous string, err error) {
	if len(s.devices) > 0 && !slices.Contains(s.devices, device) {
		return "", ErrUnknownDevice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, s.current = s.current, device
	return previous, nil
}

func (s *DeviceService) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
