package store

import (
	"context"
	"sync"

	"github.com/makeasinger/controlpanel/internal/model"
)

// MemoryJobStore is a JobStore for single-process deployments and tests.
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[int64]model.Job
	lastID int64
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[int64]model.Job)}
}

func (s *MemoryJobStore) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

func (s *MemoryJobStore) Save(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id int64) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// MemoryEnvStore is an EnvStore seeded from configuration.
type MemoryEnvStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryEnvStore(seed map[string]string) *MemoryEnvStore {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &MemoryEnvStore{values: values}
}

func (s *MemoryEnvStore) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryEnvStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
