package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireWithoutClient(t *testing.T) {
	var locker *RedisLocker
	lease, err := locker.TryAcquire(context.Background(), "sweeper", time.Second)
	assert.Error(t, err)
	assert.Nil(t, lease)
}

func TestTryAcquireSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := NewRedisLocker(client, "chores:lock:")
	lease, err := locker.TryAcquire(context.Background(), "dispute-sweeper", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chores:lock:dispute-sweeper")
	assert.Nil(t, lease)
}
