package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

// BookService owns bid persistence: recording bids, earmarking payment
// transactions, tracking tile occupancy and streaming auction winners.
// It never mutates ledger rows; a bid's tx is a read-only reference.
type BookService struct {
	db                  *sql.DB
	logger              *zap.Logger
	guaranteedOccupancy time.Duration
}

func NewBookService(db *sql.DB, logger *zap.Logger, guaranteedOccupancy time.Duration) *BookService {
	return &BookService{
		db:                  db,
		logger:              logger,
		guaranteedOccupancy: guaranteedOccupancy,
	}
}

const bidColumns = `
	id, bidder, tx, x, y, content, amount, created_at, published_at, rejection`

func scanBid(row interface{ Scan(...any) error }) (models.Bid, error) {
	var (
		bid       models.Bid
		content   []byte
		rejection []byte
	)
	err := row.Scan(
		&bid.ID, &bid.Bidder, &bid.Tx, &bid.X, &bid.Y,
		&content, &bid.Amount, &bid.CreatedAt, &bid.PublishedAt, &rejection,
	)
	if err != nil {
		return bid, err
	}
	if err := unmarshalBidExtras(&bid, content, rejection); err != nil {
		return bid, err
	}
	return bid, nil
}

func unmarshalBidExtras(bid *models.Bid, content, rejection []byte) error {
	if err := json.Unmarshal(content, &bid.Content); err != nil {
		return fmt.Errorf("decode bid content: %w", err)
	}
	if rejection != nil {
		bid.Rejection = &models.Rejection{}
		if err := json.Unmarshal(rejection, bid.Rejection); err != nil {
			return fmt.Errorf("decode bid rejection: %w", err)
		}
	}
	return nil
}

// RecordBid inserts a new bid earmarking the given payment transaction for
// the tile. Validation must have run first; this only persists.
func (s *BookService) RecordBid(ctx context.Context, tx *models.Transaction, coords models.Coords, content models.BidContent, amount int64) (models.Bid, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return models.Bid{}, fmt.Errorf("encode bid content: %w", err)
	}

	bid := models.Bid{
		Bidder:  *tx.Sender,
		Tx:      *tx.ID,
		X:       coords.X,
		Y:       coords.Y,
		Content: content,
		Amount:  amount,
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO bids (bidder, tx, x, y, content, amount)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		bid.Bidder, bid.Tx, bid.X, bid.Y, raw, bid.Amount,
	)
	if err := row.Scan(&bid.ID, &bid.CreatedAt); err != nil {
		s.logger.Error("failed to record bid",
			zap.String("coords", coords.String()), zap.Error(err))
		return models.Bid{}, fmt.Errorf("record bid: %w", err)
	}
	return bid, nil
}

// GetBid fetches one bid by id.
func (s *BookService) GetBid(ctx context.Context, id uuid.UUID) (models.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+bidColumns+` FROM bids WHERE id = $1`, id)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bid, ErrBidNotFound
	}
	if err != nil {
		return bid, fmt.Errorf("get bid: %w", err)
	}
	return bid, nil
}

// RescindBid deletes the bid, freeing its earmarked transaction, but only
// while it is still pending and belongs to the user.
func (s *BookService) RescindBid(ctx context.Context, bid *models.Bid, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bids
		 WHERE id = $1 AND bidder = $2
		   AND published_at IS NULL AND rejection IS NULL`,
		bid.ID, userID,
	)
	if err != nil {
		return fmt.Errorf("rescind bid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rescind bid: %w", err)
	}
	if affected == 0 {
		return ErrBidNotFound
	}
	return nil
}

func collectBids(rows *sql.Rows) ([]models.Bid, error) {
	bids := []models.Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bids: %w", err)
	}
	return bids, nil
}
