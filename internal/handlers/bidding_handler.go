package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/cache"
	"github.com/tilebank/backend/internal/clients/publisher"
	"github.com/tilebank/backend/internal/clients/uploads"
	"github.com/tilebank/backend/internal/models"
	"github.com/tilebank/backend/internal/services"
)

// BiddingHandler exposes the tile bidding surface: tile info, the
// two-phase bid flow (reserve upload target, then finalize), bid listings
// and the rescind/unpublish paths.
type BiddingHandler struct {
	ledger    *services.LedgerService
	book      *services.BookService
	auction   *services.AuctionService
	publisher publisher.Publisher
	uploads   uploads.Reserver
	tiles     *cache.TileCache
	rules     services.BidRules
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewBiddingHandler(
	ledger *services.LedgerService,
	book *services.BookService,
	auction *services.AuctionService,
	pub publisher.Publisher,
	reserver uploads.Reserver,
	tiles *cache.TileCache,
	rules services.BidRules,
	logger *zap.Logger,
) *BiddingHandler {
	return &BiddingHandler{
		ledger:    ledger,
		book:      book,
		auction:   auction,
		publisher: pub,
		uploads:   reserver,
		tiles:     tiles,
		rules:     rules,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// GetTileInfo returns the tile's occupant, the next auction time and the
// minimum bid. Served from cache when possible.
func (h *BiddingHandler) GetTileInfo(w http.ResponseWriter, r *http.Request) {
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	info, hit := h.tiles.GetTileInfo(r.Context(), coords)
	if !hit {
		occupant, err := h.book.GetOccupantBid(r.Context(), coords)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		info = &models.TileInfo{
			Occupant:    occupant,
			NextAuction: h.book.NextAuctionTime(occupant),
		}
		h.tiles.SetTileInfo(r.Context(), coords, info)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"last_bid":     info.Occupant,
		"next_auction": info.NextAuction,
		"minimum_bid":  h.rules.MinimumBid,
	})
}

// InitBid validates a bid attempt and reserves an upload target for its
// image. Nothing is persisted; the bid exists only once finalized.
func (h *BiddingHandler) InitBid(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	var req struct {
		Transaction uuid.UUID `json:"transaction" validate:"required"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	tx, err := h.ledger.GetTransaction(r.Context(), req.Transaction)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := services.ValidateBid(r.Context(), h.book, &tx, user.ID, coords, h.rules); err != nil {
		respondServiceError(w, err)
		return
	}

	target, err := h.uploads.Reserve(r.Context(), coords, tx.ID.String())
	if err != nil {
		h.logger.Error("upload reservation failed",
			zap.String("coords", coords.String()), zap.Error(err))
		respondServiceError(w, services.ErrUnknown)
		return
	}
	respondJSON(w, http.StatusOK, target)
}

// FinalizeBid records the bid, earmarking its payment transaction for the
// tile. When the tile has no live competition the bid is published on the
// spot instead of waiting for the next auction pass.
func (h *BiddingHandler) FinalizeBid(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	var req struct {
		Transaction uuid.UUID         `json:"transaction" validate:"required"`
		Content     models.BidContent `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	tx, err := h.ledger.GetTransaction(r.Context(), req.Transaction)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := services.ValidateBid(r.Context(), h.book, &tx, user.ID, coords, h.rules); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := services.ValidateBidContent(req.Content); err != nil {
		respondServiceError(w, err)
		return
	}

	bid, err := h.book.RecordBid(r.Context(), &tx, coords, req.Content, tx.Total())
	if err != nil {
		respondServiceError(w, services.ErrUnknown)
		return
	}

	publishNow, err := h.book.ShouldPublishImmediately(r.Context(), &bid)
	if err != nil {
		h.logger.Error("immediate publish check failed",
			zap.String("bid", bid.ID.String()), zap.Error(err))
	} else if publishNow {
		if err := h.auction.PublishBid(r.Context(), &bid, &tx); err != nil {
			// The bid stands; the next auction pass picks it up.
			h.logger.Error("immediate publish failed",
				zap.String("bid", bid.ID.String()), zap.Error(err))
		} else {
			h.tiles.Invalidate(r.Context(), coords)
		}
	}

	respondJSON(w, http.StatusOK, bid)
}

// RescindBid withdraws the caller's pending bid on the tile, freeing its
// payment transaction for other use.
func (h *BiddingHandler) RescindBid(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	bid, err := h.book.GetUserPendingBidAt(r.Context(), user.ID, coords)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.book.RescindBid(r.Context(), &bid, user.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bid)
}

// GetBids lists every bid the caller ever placed.
func (h *BiddingHandler) GetBids(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offset, limit := pagination(r)
	bids, err := h.book.GetAllUserBids(r.Context(), user.ID, offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// GetLiveBids lists the caller's bids currently occupying tiles.
func (h *BiddingHandler) GetLiveBids(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offset, limit := pagination(r)
	bids, err := h.book.GetUserPublishedBids(r.Context(), user.ID, offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// GetPendingBids lists the caller's open bids, each with the tile's
// current occupant and the time its next auction may run.
func (h *BiddingHandler) GetPendingBids(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offset, limit := pagination(r)
	pending, err := h.book.GetUserPendingBids(r.Context(), user.ID, offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	for i := range pending {
		pending[i].NextAuction = h.book.NextAuctionTime(pending[i].Occupant)
	}
	respondJSON(w, http.StatusOK, pending)
}

// UnpublishLiveBid takes the caller's own published bid off the map. The
// payment stays spent; vacating a tile is not a refund.
func (h *BiddingHandler) UnpublishLiveBid(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	occupant, err := h.book.GetOccupantBid(r.Context(), coords)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if occupant == nil {
		respondServiceError(w, services.ErrBidNotFound)
		return
	}
	if occupant.Bidder != user.ID {
		respondServiceError(w, services.ErrUnauthorizedBid)
		return
	}

	if err := h.publisher.Unpublish(r.Context(), coords); err != nil {
		h.logger.Error("failed to retract tile",
			zap.String("coords", coords.String()), zap.Error(err))
		respondServiceError(w, services.ErrUnknown)
		return
	}
	if err := h.book.Unpublish(r.Context(), occupant); err != nil {
		respondServiceError(w, err)
		return
	}
	h.tiles.Invalidate(r.Context(), coords)

	respondJSON(w, http.StatusOK, occupant)
}
