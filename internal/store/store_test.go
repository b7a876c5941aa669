package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/controlpanel/internal/model"
)

// testRedis connects to the redis named by CONTROLPANEL_TEST_REDIS, or skips.
func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("CONTROLPANEL_TEST_REDIS")
	if addr == "" {
		t.Skip("CONTROLPANEL_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func jobStores(t *testing.T) map[string]JobStore {
	stores := map[string]JobStore{"memory": NewMemoryJobStore()}
	if os.Getenv("CONTROLPANEL_TEST_REDIS") != "" {
		stores["redis"] = NewRedisJobStore(testRedis(t))
	}
	return stores
}

func TestJobStoreRoundTrip(t *testing.T) {
	for name, s := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)
			job := &model.Job{ID: 4, Kind: model.JobKindAsset, Target: "piano", Status: model.JobStatusRunning, Progress: 30, CreatedAt: now}

			require.NoError(t, s.Save(ctx, job))
			job.Progress = 40 // the store must not alias the caller's record

			got, err := s.Get(ctx, 4)
			require.NoError(t, err)
			assert.Equal(t, 30, got.Progress)
			assert.Equal(t, "piano", got.Target)
			assert.True(t, now.Equal(got.CreatedAt))

			_, err = s.Get(ctx, 5)
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	}
}

func TestMemoryEnvStore(t *testing.T) {
	ctx := context.Background()
	seed := map[string]string{"A": "1"}
	s := NewMemoryEnvStore(seed)
	seed["A"] = "changed"

	require.NoError(t, s.Set(ctx, "B", "2"))
	values, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, values)

	values["C"] = "3"
	again, _ := s.All(ctx)
	assert.NotContains(t, again, "C")
}

func TestRedisEnvStoreSeedKeepsExisting(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	require.NoError(t, client.HSet(ctx, envKey, "A", "stored").Err())

	s, err := NewRedisEnvStore(ctx, client, map[string]string{"A": "seed", "B": "seed"})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "C", "3"))

	values, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "stored", "B": "seed", "C": "3"}, values)
}

func TestRedisJobStoreExpiry(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	require.NoError(t, NewRedisJobStore(client).Save(ctx, &model.Job{ID: 1}))

	ttl, err := client.TTL(ctx, "job:1").Result()
	require.NoError(t, err)
	assert.InDelta(t, jobTTL.Seconds(), ttl.Seconds(), 5)
}

func TestJobStoreNextIDIncreases(t *testing.T) {
	for name, s := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var last int64
			for i := 0; i < 5; i++ {
				id, err := s.NextID(ctx)
				require.NoError(t, err)
				assert.Greater(t, id, last)
				last = id
			}
		})
	}
}

func TestRedisNextIDSharedBetweenStores(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	first, second := NewRedisJobStore(client), NewRedisJobStore(client)

	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		s := first
		if i%2 == 1 {
			s = second
		}
		id, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 10)
}
