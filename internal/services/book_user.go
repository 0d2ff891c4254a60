package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tilebank/backend/internal/models"
)

// GetUserPublishedBids lists the user's bids that currently occupy tiles.
func (s *BookService) GetUserPublishedBids(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bids.id, bids.bidder, bids.tx, bids.x, bids.y, bids.content,
		        bids.amount, bids.created_at, bids.published_at, bids.rejection
		 FROM published_tiles
		 JOIN bids ON published_tiles.occupant_bid = bids.id
		 WHERE bids.bidder = $1
		 ORDER BY bids.created_at DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get published bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// GetUserPendingBids lists the user's open bids, each paired with the
// tile's current occupant so callers can compute the next auction time.
func (s *BookService) GetUserPendingBids(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.PendingBid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
		   bids.id, bids.bidder, bids.tx, bids.x, bids.y, bids.content,
		   bids.amount, bids.created_at,
		   ocb.id, ocb.bidder, ocb.tx, ocb.content, ocb.amount,
		   ocb.created_at, ocb.published_at
		 FROM bids
		 LEFT JOIN published_tiles
		   ON bids.x = published_tiles.x AND bids.y = published_tiles.y
		 LEFT JOIN bids ocb ON published_tiles.occupant_bid = ocb.id
		 WHERE bids.bidder = $1 AND bids.published_at IS NULL AND bids.rejection IS NULL
		 ORDER BY bids.created_at DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending bids: %w", err)
	}
	defer rows.Close()

	pending := []models.PendingBid{}
	for rows.Next() {
		var (
			p          models.PendingBid
			content    []byte
			oID        *uuid.UUID
			oBidder    *uuid.UUID
			oTx        *uuid.UUID
			oContent   []byte
			oAmount    *int64
			oCreatedAt *time.Time
			oPublished *time.Time
		)
		err := rows.Scan(
			&p.Bid.ID, &p.Bid.Bidder, &p.Bid.Tx, &p.Bid.X, &p.Bid.Y,
			&content, &p.Bid.Amount, &p.Bid.CreatedAt,
			&oID, &oBidder, &oTx, &oContent, &oAmount, &oCreatedAt, &oPublished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending bid: %w", err)
		}
		if err := unmarshalBidExtras(&p.Bid, content, nil); err != nil {
			return nil, err
		}

		if oID != nil {
			occupant := models.Bid{
				ID:          *oID,
				Bidder:      *oBidder,
				Tx:          *oTx,
				X:           p.Bid.X,
				Y:           p.Bid.Y,
				Amount:      *oAmount,
				CreatedAt:   *oCreatedAt,
				PublishedAt: oPublished,
			}
			if err := unmarshalBidExtras(&occupant, oContent, nil); err != nil {
				return nil, err
			}
			p.Occupant = &occupant
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending bids: %w", err)
	}
	return pending, nil
}

// GetUserPendingBidAt returns the user's open bid on the given tile.
func (s *BookService) GetUserPendingBidAt(ctx context.Context, userID uuid.UUID, coords models.Coords) (models.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+bidColumns+` FROM bids
		 WHERE bidder = $1 AND x = $2 AND y = $3
		   AND published_at IS NULL AND rejection IS NULL
		 ORDER BY created_at DESC LIMIT 1`,
		userID, coords.X, coords.Y,
	)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bid, ErrBidNotFound
	}
	if err != nil {
		return bid, fmt.Errorf("get pending bid: %w", err)
	}
	return bid, nil
}

// GetAllUserBids lists every bid the user ever placed, newest first.
func (s *BookService) GetAllUserBids(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+bidColumns+` FROM bids
		 WHERE bidder = $1
		 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get all user bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// AllLiveBids lists every currently published bid across the map.
func (s *BookService) AllLiveBids(ctx context.Context, offset, limit int) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bids.id, bids.bidder, bids.tx, bids.x, bids.y, bids.content,
		        bids.amount, bids.created_at, bids.published_at, bids.rejection
		 FROM published_tiles
		 JOIN bids ON published_tiles.occupant_bid = bids.id
		 ORDER BY published_tiles.last_published_at DESC OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("all live bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// NextAuctionTime applies the configured occupancy window to an occupant.
func (s *BookService) NextAuctionTime(occupant *models.Bid) *time.Time {
	return models.NextAuctionTime(occupant, s.guaranteedOccupancy, time.Now().UTC())
}
