package service

import (
	"context"
	"fmt"

	"github.com/makeasinger/controlpanel/internal/store"
)

// EnvService exposes the environment value store.
type EnvService struct {
	store store.EnvStore
}

func NewEnvService(envStore store.EnvStore) *EnvService {
	return &EnvService{store: envStore}
}

func (s *EnvService) Values(ctx context.Context) (map[string]string, error) {
	values, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read env values: %w", err)
	}
	return values, nil
}

func (s *EnvService) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
