package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

func newCacheTest(t *testing.T) (*TileCache, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })
	return NewTileCache(client, zap.NewNop()), mock
}

func TestGetTileInfo(t *testing.T) {
	coords := models.Coords{X: 3, Y: 4}

	t.Run("hit", func(t *testing.T) {
		cache, mock := newCacheTest(t)

		nextAuction := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
		stored := models.TileInfo{
			Occupant:    &models.Bid{ID: uuid.New(), X: 3, Y: 4, Amount: 6},
			NextAuction: &nextAuction,
		}
		raw, err := json.Marshal(&stored)
		require.NoError(t, err)
		mock.ExpectGet("tileinfo:3:4").SetVal(string(raw))

		info, ok := cache.GetTileInfo(context.Background(), coords)
		require.True(t, ok)
		require.NotNil(t, info.Occupant)
		assert.Equal(t, stored.Occupant.ID, info.Occupant.ID)
		require.NotNil(t, info.NextAuction)
		assert.True(t, nextAuction.Equal(*info.NextAuction))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		cache, mock := newCacheTest(t)

		mock.ExpectGet("tileinfo:3:4").RedisNil()

		info, ok := cache.GetTileInfo(context.Background(), coords)
		assert.False(t, ok)
		assert.Nil(t, info)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry reads as a miss", func(t *testing.T) {
		cache, mock := newCacheTest(t)

		mock.ExpectGet("tileinfo:3:4").SetVal("{not json")

		info, ok := cache.GetTileInfo(context.Background(), coords)
		assert.False(t, ok)
		assert.Nil(t, info)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read error reads as a miss", func(t *testing.T) {
		cache, mock := newCacheTest(t)

		mock.ExpectGet("tileinfo:3:4").SetErr(errors.New("connection refused"))

		_, ok := cache.GetTileInfo(context.Background(), coords)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetTileInfo(t *testing.T) {
	cache, mock := newCacheTest(t)

	coords := models.Coords{X: 1, Y: 2}
	info := &models.TileInfo{}
	raw, err := json.Marshal(info)
	require.NoError(t, err)

	mock.ExpectSet("tileinfo:1:2", raw, tileInfoTTL).SetVal("OK")

	cache.SetTileInfo(context.Background(), coords, info)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	cache, mock := newCacheTest(t)

	mock.ExpectDel("tileinfo:5:5").SetVal(1)

	cache.Invalidate(context.Background(), models.Coords{X: 5, Y: 5})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilClientNoOps(t *testing.T) {
	cache := NewTileCache(nil, zap.NewNop())
	coords := models.Coords{X: 0, Y: 0}

	info, ok := cache.GetTileInfo(context.Background(), coords)
	assert.False(t, ok)
	assert.Nil(t, info)

	cache.SetTileInfo(context.Background(), coords, &models.TileInfo{})
	cache.Invalidate(context.Background(), coords)
}
