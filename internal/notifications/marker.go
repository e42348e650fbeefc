package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker records that a user was notified on a local calendar day.
type Marker interface {
	// Claim returns false when the user was already claimed for day.
	Claim(ctx context.Context, userID int64, day string) (bool, error)
	// Release drops a claim after a failed send so a later run can retry.
	Release(ctx context.Context, userID int64, day string) error
}

// markerTTL outlives any local day plus the widest offset spread.
const markerTTL = 36 * time.Hour

// RedisMarker keeps sent-markers as Redis keys with SET NX.
type RedisMarker struct {
	client *redis.Client
}

// NewRedisMarker creates a marker store on client.
func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

// MarkerKey is the Redis key for a user and local date.
func MarkerKey(userID int64, day string) string {
	return fmt.Sprintf("morningcast:sent:%d:%s", userID, day)
}

func (m *RedisMarker) Claim(ctx context.Context, userID int64, day string) (bool, error) {
	ok, err := m.client.SetNX(ctx, MarkerKey(userID, day), time.Now().UTC().Format(time.RFC3339), markerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim sent-marker: %w", err)
	}
	return ok, nil
}

func (m *RedisMarker) Release(ctx context.Context, userID int64, day string) error {
	if err := m.client.Del(ctx, MarkerKey(userID, day)).Err(); err != nil {
		return fmt.Errorf("release sent-marker: %w", err)
	}
	return nil
}
