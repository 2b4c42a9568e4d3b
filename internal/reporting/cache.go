package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Cache is a versioned read-through cache per branch. Every posted movement
// bumps the branch version, which implicitly invalidates every cached report
// built under the previous version.
type Cache struct {
	client *redis.Client
}

// NewCache constructs Cache. A nil client disables caching.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func versionKey(branchID int64) string {
	return fmt.Sprintf("reports:ver:%d", branchID)
}

// Bump invalidates all cached reports of a branch.
func (c *Cache) Bump(ctx context.Context, branchID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(branchID)).Err()
}

func (c *Cache) key(ctx context.Context, branchID int64, name string) (string, error) {
	version, err := c.client.Get(ctx, versionKey(branchID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("reports:%d:v%d:%s", branchID, version, name), nil
}

// Get loads a cached report into dest. The second return value reports a hit.
func (c *Cache) Get(ctx context.Context, branchID int64, name string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	key, err := c.key(ctx, branchID, name)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Set stores a report under the branch's current version.
func (c *Cache) Set(ctx context.Context, branchID int64, name string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, branchID, name)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, cacheTTL).Err()
}
