package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/clients/publisher"
	"github.com/tilebank/backend/internal/models"
)

// PlatformAccount receives the payment of every published bid.
const PlatformAccount = "bank"

// AuctionService settles winning bids: it forwards the bid's payment into
// the platform account, has the external publisher render the tile, and
// marks the bid as the tile's occupant. Funds move first, so a failure
// anywhere leaves no tile occupied by an unpaid bid; a publish failure
// leaves the bid unpublished for the next pass to retry.
type AuctionService struct {
	ledger    *LedgerService
	book      *BookService
	publisher publisher.Publisher
	logger    *zap.Logger
}

func NewAuctionService(ledger *LedgerService, book *BookService, pub publisher.Publisher, logger *zap.Logger) *AuctionService {
	return &AuctionService{
		ledger:    ledger,
		book:      book,
		publisher: pub,
		logger:    logger,
	}
}

// PublishBid settles one bid against its payment transaction. Used both
// for immediate publishes at submission time and for batch auction runs.
// A payment already consumed by a prior forward is not forwarded again;
// the retry pass hands such bids back here to finish publish and mark.
func (s *AuctionService) PublishBid(ctx context.Context, bid *models.Bid, tx *models.Transaction) error {
	if !tx.Consumed {
		forward := models.Transaction{
			Consumes:      tx.ID,
			ConsumedValue: tx.Total(),
			SenderSys:     tx.ReceiverSys,
			ReceiverSys:   models.StrPtr(PlatformAccount),
			Note:          models.StrPtr(fmt.Sprintf("bid %s published", bid.ID)),
			IssuedBy:      tx.IssuedBy,
		}
		if err := s.ledger.commit(ctx, &forward); err != nil {
			return fmt.Errorf("forward bid payment: %w", err)
		}
	}

	if err := s.publisher.Publish(ctx, bid); err != nil {
		return fmt.Errorf("publish tile: %w", err)
	}

	if err := s.book.MarkAsPublished(ctx, bid); err != nil {
		return fmt.Errorf("mark bid published: %w", err)
	}
	return nil
}

// PublishAllResult tallies one settlement pass.
type PublishAllResult struct {
	Published []models.Bid
	Failed    []models.Bid
}

// PublishAllWinningBids runs one full settlement pass. Bids that paid on a
// previous pass but failed at the publish boundary are finished first,
// then every coordinate with an eligible winner gets settled, one winner
// at a time. A failed settlement is logged and counted but never aborts
// the rest of the pass; the bid stays unpublished for a future pass.
func (s *AuctionService) PublishAllWinningBids(ctx context.Context) (PublishAllResult, error) {
	result := PublishAllResult{}

	forwarded, err := s.book.FindForwardedUnpublished(ctx, PlatformAccount)
	if err != nil {
		return result, fmt.Errorf("find forwarded bids: %w", err)
	}
	for i := range forwarded {
		winning := &forwarded[i]
		s.logger.Info("retrying paid unpublished bid",
			zap.String("coords", winning.Bid.Coords().String()),
			zap.String("bid", winning.Bid.ID.String()))

		if err := s.PublishBid(ctx, &winning.Bid, &winning.Transaction); err != nil {
			s.logger.Error("retry failed",
				zap.String("bid", winning.Bid.ID.String()), zap.Error(err))
			result.Failed = append(result.Failed, winning.Bid)
			continue
		}
		result.Published = append(result.Published, winning.Bid)
	}

	stream, err := s.book.StreamAuctionWinners(ctx)
	if err != nil {
		return result, fmt.Errorf("stream winners: %w", err)
	}
	defer stream.Close()

	for stream.Next() {
		winning := stream.Winner()
		s.logger.Info("publishing auction winner",
			zap.String("coords", winning.Bid.Coords().String()),
			zap.String("bid", winning.Bid.ID.String()))

		if err := s.PublishBid(ctx, &winning.Bid, &winning.Transaction); err != nil {
			s.logger.Error("failed to publish auction winner",
				zap.String("coords", winning.Bid.Coords().String()),
				zap.String("bid", winning.Bid.ID.String()),
				zap.Error(err))
			result.Failed = append(result.Failed, winning.Bid)
			continue
		}
		result.Published = append(result.Published, winning.Bid)
	}
	if err := stream.Err(); err != nil {
		return result, fmt.Errorf("iterate winners: %w", err)
	}
	return result, nil
}
