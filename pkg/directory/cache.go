package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helioshq/helios/pkg/models"
)

const defaultCacheTTL = 5 * time.Minute

// CachedDirectory wraps another Directory with a Redis read-through cache.
// Cache failures degrade to the underlying directory, never to an error.
type CachedDirectory struct {
	next   Directory
	client redis.UniversalClient
	orgID  string
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, client redis.UniversalClient, orgID string, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		client: client,
		orgID:  orgID,
		ttl:    defaultCacheTTL,
		logger: logger.With("module", "directory_cache"),
	}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, nil
	}

	key := d.key(userID)

	cached, err := d.client.Get(ctx, key).Result()

	switch {
	case err == nil:
		var profile models.UserProfile
		if err := json.Unmarshal([]byte(cached), &profile); err == nil {
			return &profile, nil
		}

		d.logger.WarnContext(ctx, "Discarding malformed cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		d.logger.WarnContext(ctx, "Directory cache read failed", "key", key, "error", err)
	}

	profile, err := d.next.Lookup(ctx, userID)
	if err != nil || profile == nil {
		return profile, err
	}

	payload, err := json.Marshal(profile)
	if err == nil {
		if err := d.client.Set(ctx, key, payload, d.ttl).Err(); err != nil {
			d.logger.WarnContext(ctx, "Directory cache write failed", "key", key, "error", err)
		}
	}

	return profile, nil
}

func (d *CachedDirectory) key(userID string) string {
	return fmt.Sprintf("helios:directory:%s:%s", d.orgID, userID)
}
