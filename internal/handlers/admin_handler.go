package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/cache"
	"github.com/tilebank/backend/internal/clients/publisher"
	"github.com/tilebank/backend/internal/models"
	"github.com/tilebank/backend/internal/services"
)

// AdminHandler exposes the operator surface: asset injection, clearing
// system-received offers, balance inspection and bid moderation. All
// routes sit behind both the user token and the admin key check.
type AdminHandler struct {
	ledger    *services.LedgerService
	book      *services.BookService
	publisher publisher.Publisher
	tiles     *cache.TileCache
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewAdminHandler(
	ledger *services.LedgerService,
	book *services.BookService,
	pub publisher.Publisher,
	tiles *cache.TileCache,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		book:      book,
		publisher: pub,
		tiles:     tiles,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// Inject mints value into any account.
func (h *AdminHandler) Inject(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Receiver models.Account `json:"receiver" validate:"required"`
		Amount   int64          `json:"amount" validate:"required,gt=0"`
		Note     *string        `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.ledger.Inject(r.Context(), req.Receiver, req.Amount, req.Note, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	h.logger.Info("assets injected",
		zap.String("receiver", req.Receiver.String()),
		zap.Int64("amount", req.Amount),
		zap.String("admin", user.ID.String()))
	respondJSON(w, http.StatusOK, result)
}

// PartiallyAccept clears part of an offer addressed to a system account,
// offering the remainder back to its sender.
func (h *AdminHandler) PartiallyAccept(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Transaction uuid.UUID `json:"transaction" validate:"required"`
		Amount      int64     `json:"amount" validate:"required,gte=0"`
		Note        *string   `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := h.ledger.GetTransaction(r.Context(), req.Transaction)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !tx.IsOffer() || tx.IsUsed() {
		respondServiceError(w, services.ErrErroneousTransaction)
		return
	}
	if tx.ReceiverAccount().Kind != models.AccountSystem {
		respondServiceError(w, services.ErrUnauthorizedTransaction)
		return
	}

	result, err := h.ledger.PartiallyAccept(r.Context(), &tx, req.Amount, req.Note, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetUserBalance returns a user's current balance transaction.
func (h *AdminHandler) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	balance, err := h.ledger.FindBalance(r.Context(), models.UserAccount(userID))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

// GetAllLiveBids lists every published bid across the map.
func (h *AdminHandler) GetAllLiveBids(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	bids, err := h.book.AllLiveBids(r.Context(), offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// GetOccupant returns the bid currently published at the coordinate.
func (h *AdminHandler) GetOccupant(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, occupant)
}

// RejectBid records a moderation rejection on the tile's occupant, vacates
// the tile and retracts the rendered content. The bidder's payment stays
// spent.
func (h *AdminHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	coords, ok := requestCoords(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required,max=1000"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
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

	admin := &models.AdminUser{AuthenticatedUser: *user}
	if err := h.book.Reject(r.Context(), occupant, admin, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.publisher.Unpublish(r.Context(), coords); err != nil {
		// The occupancy is already cleared; the retraction can be replayed.
		h.logger.Error("failed to retract rejected tile",
			zap.String("coords", coords.String()), zap.Error(err))
	}
	h.tiles.Invalidate(r.Context(), coords)

	respondJSON(w, http.StatusOK, occupant)
}
