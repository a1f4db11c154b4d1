package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client, err := NewClient(&Config{Host: "localhost", Port: "6379"})
	if err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAvailabilityCache(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client)
	ctx := context.Background()
	eventID := "test-event-123"
	t.Cleanup(func() { _ = cache.Invalidate(ctx, eventID) })

	t.Run("キャッシュミス時はErrCacheMissを返す", func(t *testing.T) {
		_ = cache.Invalidate(ctx, eventID)
		_, err := cache.Get(ctx, eventID)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("キャッシュにセットした値を取得できる", func(t *testing.T) {
		err := cache.Set(ctx, eventID, map[string]int{"t-1": 4, "t-2": 0}, 30*time.Second)
		require.NoError(t, err)

		got, err := cache.Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"t-1": 4, "t-2": 0}, got)
	})

	t.Run("再設定で古いテーブルは消える", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, eventID, map[string]int{"t-1": 2}, 30*time.Second))

		got, err := cache.Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"t-1": 2}, got)
	})

	t.Run("テーブルがなくてもヒットする", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, eventID, map[string]int{}, 30*time.Second))

		got, err := cache.Get(ctx, eventID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("キャッシュを無効化できる", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, eventID, map[string]int{"t-1": 1}, 30*time.Second))
		require.NoError(t, cache.Invalidate(ctx, eventID))

		_, err := cache.Get(ctx, eventID)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestAvailabilityCache_TTL(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewAvailabilityCache(client)
	ctx := context.Background()
	eventID := "test-event-ttl"

	t.Run("TTL経過後はキャッシュミスになる", func(t *testing.T) {
		err := cache.Set(ctx, eventID, map[string]int{"t-1": 100}, 100*time.Millisecond)
		require.NoError(t, err)

		// TTL経過前
		got, err := cache.Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, 100, got["t-1"])

		// TTL経過後
		time.Sleep(150 * time.Millisecond)
		_, err = cache.Get(ctx, eventID)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}
