package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pathways/internal/progress"
)

const (
	// DefaultProgressTTL bounds how long a report may outlive a missed
	// invalidation.
	DefaultProgressTTL = 10 * time.Minute

	progressKeyPrefix = "progress:"
)

// Entry is a cached progress report together with the completed milestone
// ids it was computed from.
type Entry struct {
	CompletedMilestoneIDs []string        `json:"completed_milestone_ids"`
	Report                progress.Report `json:"report"`
}

// ProgressCache stores computed progress reports keyed by user id.
type ProgressCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProgressCache creates a progress cache. A zero ttl uses DefaultProgressTTL.
func NewProgressCache(client *redis.Client, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressCache{client: client, ttl: ttl}
}

func progressKey(userID uuid.UUID) string {
	return progressKeyPrefix + userID.String()
}

// Get returns the cached entry for a user, or nil on a miss.
func (c *ProgressCache) Get(ctx context.Context, userID uuid.UUID) (*Entry, error) {
	data, err := c.client.Get(ctx, progressKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress cache get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A payload from an older layout is treated as a miss.
		return nil, nil
	}
	return &e, nil
}

// Set stores an entry for a user.
func (c *ProgressCache) Set(ctx context.Context, userID uuid.UUID, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, progressKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("progress cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for a user.
func (c *ProgressCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, progressKey(userID)).Err(); err != nil {
		return fmt.Errorf("progress cache invalidate: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached report, for use after a catalog change.
// It returns the number of keys removed.
func (c *ProgressCache) InvalidateAll(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, progressKeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("progress cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("progress cache delete: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
