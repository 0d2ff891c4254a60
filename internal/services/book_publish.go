package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

// MarkAsPublished stamps the bid and upserts it as the tile's occupant in
// one database transaction. Already published bids are left untouched.
func (s *BookService) MarkAsPublished(ctx context.Context, bid *models.Bid) error {
	if bid.IsPublished() {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer dbTx.Rollback()

	var publishedAt time.Time
	row := dbTx.QueryRowContext(ctx,
		`UPDATE bids SET published_at = now() WHERE id = $1 RETURNING published_at`,
		bid.ID,
	)
	if err := row.Scan(&publishedAt); err != nil {
		return fmt.Errorf("mark bid published: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO published_tiles (x, y, occupant_bid) VALUES ($1, $2, $3)
		 ON CONFLICT (x, y) DO UPDATE SET
		   occupant_bid = excluded.occupant_bid,
		   last_published_at = now()`,
		bid.X, bid.Y, bid.ID,
	)
	if err != nil {
		return fmt.Errorf("occupy tile: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	bid.PublishedAt = &publishedAt
	return nil
}

// Unpublish clears the tile's occupancy, but only while it still points at
// this bid; a concurrent occupant change fails with ErrBidNotFound.
func (s *BookService) Unpublish(ctx context.Context, bid *models.Bid) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE published_tiles SET occupant_bid = NULL
		 WHERE x = $1 AND y = $2 AND occupant_bid = $3`,
		bid.X, bid.Y, bid.ID,
	)
	if err != nil {
		return fmt.Errorf("unpublish: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unpublish: %w", err)
	}
	if affected == 0 {
		return ErrBidNotFound
	}
	return nil
}

// Reject records an admin rejection on the bid and, when the bid is the
// tile's occupant, clears the occupancy, atomically. The caller separately
// instructs the publisher to retract the rendered content. Already
// rejected bids are left untouched.
func (s *BookService) Reject(ctx context.Context, bid *models.Bid, admin *models.AdminUser, reason string) error {
	if bid.IsRejected() {
		return nil
	}

	rejection := models.Rejection{
		Reason:     reason,
		RejectedBy: admin.ID,
		RejectedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rejection)
	if err != nil {
		return fmt.Errorf("encode rejection: %w", err)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reject: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`UPDATE bids SET rejection = $1 WHERE id = $2`, raw, bid.ID)
	if err != nil {
		return fmt.Errorf("reject bid: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE published_tiles SET occupant_bid = NULL
		 WHERE x = $1 AND y = $2 AND occupant_bid = $3`,
		bid.X, bid.Y, bid.ID,
	)
	if err != nil {
		return fmt.Errorf("vacate tile: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit reject: %w", err)
	}

	s.logger.Info("bid rejected",
		zap.String("bid", bid.ID.String()),
		zap.String("coords", bid.Coords().String()),
		zap.String("reason", reason))
	bid.Rejection = &rejection
	return nil
}
