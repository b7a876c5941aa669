// Package store persists job records and environment values, either in
// redis or in process memory.
package store

import (
	"context"
	"errors"

	"github.com/makeasinger/controlpanel/internal/model"
)

// ErrJobNotFound is returned by JobStore.Get for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps the latest record of every job and hands out job ids.
// NextID never returns the same id twice for one backing store, across
// restarts and across processes sharing it.
type JobStore interface {
	NextID(ctx context.Context) (int64, error)
	Save(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id int64) (*model.Job, error)
}

// EnvStore holds the key/value pairs exposed by getEnvValues and setEnvValue.
type EnvStore interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}
