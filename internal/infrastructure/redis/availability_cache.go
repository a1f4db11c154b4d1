package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// テーブルのないイベントでもハッシュを存在させるための印
const presenceField = "_"

// AvailabilityCache はイベントのテーブル別空席数をハッシュでキャッシュする
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// Get はテーブルID → 空席数をキャッシュから取得する
func (c *AvailabilityCache) Get(ctx context.Context, eventID string) (map[string]int, error) {
	values, err := c.client.HGetAll(ctx, c.key(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrCacheMiss
	}

	out := make(map[string]int, len(values))
	for field, raw := range values {
		if field == presenceField {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("キャッシュ値が不正です（%s）: %w", field, err)
		}
		out[field] = n
	}
	return out, nil
}

// Set はテーブル別空席数をまとめて保存する
func (c *AvailabilityCache) Set(ctx context.Context, eventID string, available map[string]int, ttl time.Duration) error {
	key := c.key(eventID)
	fields := make(map[string]interface{}, len(available)+1)
	fields[presenceField] = 1
	for tableID, n := range available {
		fields[tableID] = n
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベントのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	err := c.client.Del(ctx, c.key(eventID)).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) key(eventID string) string {
	return fmt.Sprintf("tables:available:%s", eventID)
}
