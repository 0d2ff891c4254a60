package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
	"github.com/tilebank/backend/internal/services"
)

// WalletHandler exposes the user-facing wallet surface: balance, offer
// listings and the offer lifecycle (create, accept, reject, rescind).
type WalletHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewWalletHandler(ledger *services.LedgerService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
		logger:    logger,
	}
}

// GetBalance returns the caller's current balance transaction, creating
// the account with the initial grant on first contact.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.BalanceOrInit(r.Context(), models.UserAccount(user.ID), nil, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

// GetOffers lists unspent offers addressed to the caller.
func (h *WalletHandler) GetOffers(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offset, limit := pagination(r)
	offers, err := h.ledger.FindOpenOffers(r.Context(), models.UserAccount(user.ID), offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, offers)
}

// GetHistory lists every transaction the caller was a party to.
func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offset, limit := pagination(r)
	history, err := h.ledger.TransactionHistory(r.Context(), user.ID, offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// CreateOffer splits the caller's balance into an offer to the given
// receiver plus their remaining balance.
func (h *WalletHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
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
	if !req.Receiver.IsValid() {
		services.SendErrorResponse(w, "Invalid receiver account", http.StatusBadRequest, nil)
		return
	}

	result, err := h.ledger.Offer(r.Context(), models.UserAccount(user.ID), req.Receiver, req.Amount, req.Note, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Accept merges an offer addressed to the caller into their balance.
func (h *WalletHandler) Accept(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	offer, ok := h.offerForReceiver(w, r, user.ID)
	if !ok {
		return
	}

	merged, err := h.ledger.Accept(r.Context(), offer, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, merged)
}

// Reject offers the full amount back to the sender.
func (h *WalletHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Transaction uuid.UUID `json:"transaction" validate:"required"`
		Note        *string   `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	offer, ok := h.usableOffer(w, r, req.Transaction)
	if !ok {
		return
	}
	if !offer.IsUsableOfferTo(user.ID) {
		respondServiceError(w, services.ErrUnauthorizedTransaction)
		return
	}

	reverse, err := h.ledger.Reject(r.Context(), offer, req.Note, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reverse)
}

// Rescind reclaims an offer the caller sent but the receiver has not
// acted on.
func (h *WalletHandler) Rescind(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
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

	offer, ok := h.usableOffer(w, r, req.Transaction)
	if !ok {
		return
	}
	if !offer.IsUsableOfferFrom(user.ID) {
		respondServiceError(w, services.ErrUnauthorizedTransaction)
		return
	}

	merged, err := h.ledger.Rescind(r.Context(), offer, user)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, merged)
}

func (h *WalletHandler) offerForReceiver(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*models.Transaction, bool) {
	var req struct {
		Transaction uuid.UUID `json:"transaction" validate:"required"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}

	offer, ok := h.usableOffer(w, r, req.Transaction)
	if !ok {
		return nil, false
	}
	if !offer.IsUsableOfferTo(userID) {
		respondServiceError(w, services.ErrUnauthorizedTransaction)
		return nil, false
	}
	return offer, true
}

// usableOffer loads the transaction and rejects rows that are not open
// offers.
func (h *WalletHandler) usableOffer(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*models.Transaction, bool) {
	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if !tx.IsOffer() {
		respondServiceError(w, services.ErrErroneousTransaction)
		return nil, false
	}
	if tx.IsUsed() {
		respondServiceError(w, services.ErrAlreadyUsedTransaction)
		return nil, false
	}
	return &tx, true
}
