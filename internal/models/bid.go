package models

import (
	"time"

	"github.com/google/uuid"
)

// BidContent is the user-provided content rendered on a tile once the bid
// wins. Stored as jsonb alongside the bid.
type BidContent struct {
	Image       *string `json:"image"`
	Description *string `json:"description"`
	Title       *string `json:"title"`
	Subtitle    *string `json:"subtitle"`
	URL         *string `json:"url"`
}

// Rejection records an admin rejecting a bid. Set at most once; a rejected
// bid is terminal.
type Rejection struct {
	Reason     string    `json:"reason"`
	RejectedBy uuid.UUID `json:"rejected_by"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Bid earmarks a payment transaction for one tile. Tx is a read-only
// reference into the ledger's data, never mutated by the book.
type Bid struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Bidder      uuid.UUID  `json:"bidder" db:"bidder"`
	Tx          uuid.UUID  `json:"tx" db:"tx"`
	X           int32      `json:"x" db:"x"`
	Y           int32      `json:"y" db:"y"`
	Content     BidContent `json:"content" db:"content"`
	Amount      int64      `json:"amount" db:"amount"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	Rejection   *Rejection `json:"rejection" db:"rejection"`
}

func (b *Bid) Coords() Coords {
	return Coords{X: b.X, Y: b.Y}
}

func (b *Bid) IsPublished() bool {
	return b.PublishedAt != nil
}

func (b *Bid) IsRejected() bool {
	return b.Rejection != nil
}

// PendingBid pairs an open bid with the tile's current occupant (if any)
// and the time the next auction for that tile may run.
type PendingBid struct {
	Bid         Bid        `json:"bid"`
	Occupant    *Bid       `json:"occupant"`
	NextAuction *time.Time `json:"next_auction"`
}

// TileInfo is the public view of one tile: who occupies it and when the
// next auction for it may run.
type TileInfo struct {
	Occupant    *Bid       `json:"occupant"`
	NextAuction *time.Time `json:"next_auction"`
}

// WinningBid pairs an auction winner with its payment transaction.
type WinningBid struct {
	Bid         Bid         `json:"bid"`
	Transaction Transaction `json:"transaction"`
}

// NextAuctionTime returns when the tile's next auction may run. Nil means
// the auction can run immediately: there is no occupant, the occupant was
// never actually published, or its guaranteed occupancy window has lapsed.
func NextAuctionTime(occupant *Bid, guaranteedOccupancy time.Duration, now time.Time) *time.Time {
	if occupant == nil || occupant.PublishedAt == nil {
		return nil
	}
	if now.Sub(*occupant.PublishedAt) > guaranteedOccupancy {
		return nil
	}
	next := occupant.PublishedAt.Add(guaranteedOccupancy)
	return &next
}
