package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/controlpanel/internal/model"
)

const (
	jobKeyPrefix = "job:"
	jobSeqKey    = "job:seq"
	jobTTL       = 24 * time.Hour
	envKey       = "env:values"
)

// RedisJobStore mirrors job records under job:<id> with a one day expiry.
type RedisJobStore struct {
	redis redis.UniversalClient
}

func NewRedisJobStore(client redis.UniversalClient) *RedisJobStore {
	return &RedisJobStore{redis: client}
}

// NextID increments job:seq, so ids keep growing across restarts and are
// unique among every server sharing the redis.
func (s *RedisJobStore) NextID(ctx context.Context) (int64, error) {
	return s.redis.Incr(ctx, jobSeqKey).Result()
}

func (s *RedisJobStore) Save(ctx context.Context, job *model.Job) error {
	data, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *RedisJobStore) Get(ctx context.Context, id int64) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := sonic.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func jobKey(id int64) string {
	return fmt.Sprintf("%s%d", jobKeyPrefix, id)
}

// RedisEnvStore keeps environment values in the env:values hash.
type RedisEnvStore struct {
	redis redis.UniversalClient
}

// NewRedisEnvStore returns a store backed by client. Seed values are written
// only for keys the hash does not hold yet.
func NewRedisEnvStore(ctx context.Context, client redis.UniversalClient, seed map[string]string) (*RedisEnvStore, error) {
	for k, v := range seed {
		if err := client.HSetNX(ctx, envKey, k, v).Err(); err != nil {
			return nil, fmt.Errorf("failed to seed env values: %w", err)
		}
	}
	return &RedisEnvStore{redis: client}, nil
}

func (s *RedisEnvStore) All(ctx context.Context) (map[string]string, error) {
	values, err := s.redis.HGetAll(ctx, envKey).Result()
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *RedisEnvStore) Set(ctx context.Context, key, value string) error {
	return s.redis.HSet(ctx, envKey, key, value).Err()
}
