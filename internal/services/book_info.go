package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tilebank/backend/internal/models"
)

// GetEarmarked returns the bid already using the given transaction as its
// payment, if any. This is the application-level single-use guard for the
// auction context: a transaction may be a perfectly valid unspent offer
// and still be bound to exactly one bid at a time.
func (s *BookService) GetEarmarked(ctx context.Context, tx *models.Transaction) (*models.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+bidColumns+` FROM bids WHERE tx = $1 LIMIT 1`, tx.ID)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get earmarked: %w", err)
	}
	return &bid, nil
}

// GetOccupantBid returns the bid currently published at the coordinate.
func (s *BookService) GetOccupantBid(ctx context.Context, coords models.Coords) (*models.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bids.id, bids.bidder, bids.tx, bids.x, bids.y, bids.content,
		        bids.amount, bids.created_at, bids.published_at, bids.rejection
		 FROM published_tiles
		 JOIN bids ON published_tiles.occupant_bid = bids.id
		 WHERE published_tiles.x = $1 AND published_tiles.y = $2`,
		coords.X, coords.Y,
	)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get occupant bid: %w", err)
	}
	return &bid, nil
}

// ShouldPublishImmediately reports whether a freshly recorded bid can be
// published without waiting for an auction: either it has no competition
// at all, or the tile's occupancy window has lapsed (or never started) and
// no competing pending bid with an unspent payment exists.
func (s *BookService) ShouldPublishImmediately(ctx context.Context, bid *models.Bid) (bool, error) {
	var publishNow sql.NullBool
	err := s.db.QueryRowContext(ctx,
		`WITH
		   last_pub AS MATERIALIZED (
		     SELECT last_published_at FROM published_tiles
		     WHERE x = $2 AND y = $3 AND occupant_bid IS NOT NULL
		     LIMIT 1
		   ),
		   competing AS MATERIALIZED (
		     SELECT 1 FROM bids bid JOIN transactions tx ON bid.tx = tx.id
		     WHERE bid.id <> $1 AND bid.x = $2 AND bid.y = $3
		       AND bid.published_at IS NULL AND bid.rejection IS NULL
		       AND tx.consumed = false
		     LIMIT 1
		   )
		 SELECT
		   NOT EXISTS (SELECT 1 FROM bids bid WHERE bid.id <> $1 AND x = $2 AND y = $3)
		   OR (
		     (
		       EXISTS (SELECT 1 FROM last_pub WHERE last_published_at <= now() - make_interval(secs => $4))
		       OR NOT EXISTS (SELECT 1 FROM last_pub)
		     )
		     AND NOT EXISTS (SELECT 1 FROM competing)
		   )
		 AS publish_now`,
		bid.ID, bid.X, bid.Y, s.guaranteedOccupancy.Seconds(),
	).Scan(&publishNow)
	if err != nil {
		return false, fmt.Errorf("should publish immediately: %w", err)
	}
	return publishNow.Valid && publishNow.Bool, nil
}

// FindForwardedUnpublished lists bids whose payment was already forwarded
// to the platform account but which never got published: a prior
// settlement attempt paid and then failed at the publish boundary. These
// are retried ahead of fresh winners on every auction pass, since the
// winner stream only considers unspent payments.
func (s *BookService) FindForwardedUnpublished(ctx context.Context, platformAccount string) ([]models.WinningBid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
		   bid.id, bid.bidder, bid.tx, bid.x, bid.y, bid.content, bid.amount,
		   bid.created_at, bid.published_at, bid.rejection,
		   tx.id, tx.sender, tx.receiver, tx.sender_sys, tx.receiver_sys,
		   tx.consumes, tx.consumed_value, tx.merges, tx.merged_value,
		   tx.is_state, tx.consumed, tx.merged, tx.note, tx.issued_by, tx.created_at
		 FROM bids bid
		 JOIN transactions tx ON tx.id = bid.tx
		 WHERE bid.published_at IS NULL
		   AND bid.rejection IS NULL
		   AND EXISTS (
		     SELECT 1 FROM transactions fwd
		     WHERE fwd.consumes = tx.id AND fwd.receiver_sys = $1
		   )`,
		platformAccount,
	)
	if err != nil {
		return nil, fmt.Errorf("find forwarded unpublished: %w", err)
	}
	defer rows.Close()

	winners := []models.WinningBid{}
	for rows.Next() {
		w, err := scanWinningBid(rows)
		if err != nil {
			return nil, err
		}
		winners = append(winners, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forwarded bids: %w", err)
	}
	return winners, nil
}

// WinnerStream lazily yields auction winners from an open query. Callers
// must Close it and check Err after the final Next.
type WinnerStream struct {
	rows    *sql.Rows
	current models.WinningBid
	err     error
}

func (ws *WinnerStream) Next() bool {
	if ws.err != nil || !ws.rows.Next() {
		return false
	}
	ws.current, ws.err = scanWinningBid(ws.rows)
	return ws.err == nil
}

func (ws *WinnerStream) Winner() models.WinningBid {
	return ws.current
}

func (ws *WinnerStream) Err() error {
	if ws.err != nil {
		return ws.err
	}
	return ws.rows.Err()
}

func (ws *WinnerStream) Close() error {
	return ws.rows.Close()
}

// StreamAuctionWinners yields, per coordinate, the best pending bid among
// tiles that are either vacant or whose guaranteed occupancy has lapsed.
// Only bids with an unspent payment transaction compete. Order within one
// tile is amount desc, then earliest submission, then id, so the winner is
// deterministic even on equal amounts.
func (s *BookService) StreamAuctionWinners(ctx context.Context) (*WinnerStream, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH auctions AS MATERIALIZED (
		   SELECT DISTINCT bid.x, bid.y FROM bids bid
		   JOIN transactions tx ON tx.id = bid.tx
		     AND tx.consumed = false
		     AND tx.merged = false
		   WHERE bid.published_at IS NULL
		     AND bid.rejection IS NULL
		     AND NOT EXISTS (
		       SELECT 1 FROM published_tiles tile
		       WHERE tile.x = bid.x AND tile.y = bid.y
		         AND tile.occupant_bid IS NOT NULL
		         AND tile.last_published_at > now() - make_interval(secs => $1)
		     )
		 )
		 SELECT DISTINCT ON (bid.x, bid.y)
		   bid.id, bid.bidder, bid.tx, bid.x, bid.y, bid.content, bid.amount,
		   bid.created_at, bid.published_at, bid.rejection,
		   tx.id, tx.sender, tx.receiver, tx.sender_sys, tx.receiver_sys,
		   tx.consumes, tx.consumed_value, tx.merges, tx.merged_value,
		   tx.is_state, tx.consumed, tx.merged, tx.note, tx.issued_by, tx.created_at
		 FROM auctions auction
		 JOIN bids bid ON bid.x = auction.x AND bid.y = auction.y
		 JOIN transactions tx ON tx.id = bid.tx
		   AND tx.consumed = false
		   AND tx.merged = false
		 WHERE bid.published_at IS NULL
		   AND bid.rejection IS NULL
		 ORDER BY bid.x, bid.y, bid.amount DESC, bid.created_at ASC, bid.id ASC`,
		s.guaranteedOccupancy.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("stream auction winners: %w", err)
	}
	return &WinnerStream{rows: rows}, nil
}

func scanWinningBid(rows *sql.Rows) (models.WinningBid, error) {
	var (
		w         models.WinningBid
		content   []byte
		rejection []byte
	)
	err := rows.Scan(
		&w.Bid.ID, &w.Bid.Bidder, &w.Bid.Tx, &w.Bid.X, &w.Bid.Y,
		&content, &w.Bid.Amount, &w.Bid.CreatedAt, &w.Bid.PublishedAt, &rejection,
		&w.Transaction.ID, &w.Transaction.Sender, &w.Transaction.Receiver,
		&w.Transaction.SenderSys, &w.Transaction.ReceiverSys,
		&w.Transaction.Consumes, &w.Transaction.ConsumedValue,
		&w.Transaction.Merges, &w.Transaction.MergedValue,
		&w.Transaction.IsState, &w.Transaction.Consumed, &w.Transaction.Merged,
		&w.Transaction.Note, &w.Transaction.IssuedBy, &w.Transaction.CreatedAt,
	)
	if err != nil {
		return w, fmt.Errorf("scan winning bid: %w", err)
	}
	if err := unmarshalBidExtras(&w.Bid, content, rejection); err != nil {
		return w, err
	}
	return w, nil
}
