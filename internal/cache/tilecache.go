package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

const tileInfoTTL = 5 * time.Minute

// TileCache keeps the public tile info (occupant plus next auction time)
// in Redis so the busiest read path skips the database. A nil client
// turns every method into a no-op and callers fall through to the
// database.
type TileCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewTileCache(client *redis.Client, logger *zap.Logger) *TileCache {
	return &TileCache{client: client, logger: logger}
}

func tileKey(coords models.Coords) string {
	return "tileinfo:" + coords.String()
}

// GetTileInfo returns the cached info and whether the cache had it.
func (c *TileCache) GetTileInfo(ctx context.Context, coords models.Coords) (*models.TileInfo, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, tileKey(coords)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("tile cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var info models.TileInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		c.logger.Warn("tile cache entry corrupt", zap.String("key", tileKey(coords)), zap.Error(err))
		return nil, false
	}
	return &info, true
}

func (c *TileCache) SetTileInfo(ctx context.Context, coords models.Coords, info *models.TileInfo) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, tileKey(coords), raw, tileInfoTTL).Err(); err != nil {
		c.logger.Warn("tile cache write failed", zap.Error(err))
	}
}

// Invalidate drops the entry for a tile whose occupancy just changed.
func (c *TileCache) Invalidate(ctx context.Context, coords models.Coords) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, tileKey(coords)).Err(); err != nil {
		c.logger.Warn("tile cache invalidation failed", zap.Error(err))
	}
}
