package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAuctionTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	t.Run("vacant tile auctions immediately", func(t *testing.T) {
		assert.Nil(t, NextAuctionTime(nil, window, now))
	})

	t.Run("unpublished occupant does not shield the tile", func(t *testing.T) {
		occupant := &Bid{}
		assert.Nil(t, NextAuctionTime(occupant, window, now))
	})

	t.Run("lapsed occupancy auctions immediately", func(t *testing.T) {
		published := now.Add(-window - time.Hour)
		occupant := &Bid{PublishedAt: &published}
		assert.Nil(t, NextAuctionTime(occupant, window, now))
	})

	t.Run("live occupancy schedules the next auction", func(t *testing.T) {
		published := now.Add(-24 * time.Hour)
		occupant := &Bid{PublishedAt: &published}

		next := NextAuctionTime(occupant, window, now)
		require.NotNil(t, next)
		assert.Equal(t, published.Add(window), *next)
	})
}

func TestBidState(t *testing.T) {
	bid := Bid{X: 2, Y: 3}
	assert.Equal(t, Coords{X: 2, Y: 3}, bid.Coords())
	assert.False(t, bid.IsPublished())
	assert.False(t, bid.IsRejected())

	now := time.Now()
	bid.PublishedAt = &now
	assert.True(t, bid.IsPublished())

	bid.Rejection = &Rejection{Reason: "spam"}
	assert.True(t, bid.IsRejected())
}
