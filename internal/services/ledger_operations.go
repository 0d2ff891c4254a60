package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

// OfferResult is the pair of rows produced by a successful offer: the
// offer itself and the sender's new balance.
type OfferResult struct {
	Offer models.Transaction `json:"offer"`
	Rest  models.Transaction `json:"rest"`
}

// PartialAcceptResult pairs the remainder offered back to the sender with
// the receiver's new balance.
type PartialAcceptResult struct {
	Returned models.Transaction `json:"returned"`
	Merged   models.Transaction `json:"merged"`
}

// InjectResult reports the chain of rows produced by an injection. Merged
// is set only when the receiver is a system account, in which case the
// offer is auto-accepted.
type InjectResult struct {
	Init   models.Transaction  `json:"init"`
	Offer  models.Transaction  `json:"offer"`
	Merged *models.Transaction `json:"merged,omitempty"`
}

// BalanceOrInit returns the account's current balance transaction,
// initializing the account if it has no prior state. Nil initAmount means
// the configured welcome grant for user accounts; system accounts start
// empty, they only ever hold what was moved into them.
func (s *LedgerService) BalanceOrInit(ctx context.Context, account models.Account, initAmount *int64, issuer *models.AuthenticatedUser) (models.Transaction, error) {
	balance, err := s.FindBalance(ctx, account)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return models.Transaction{}, ErrUnknown
	}
	if !account.IsValid() {
		return models.Transaction{}, ErrTransactionNotFound
	}

	var amount int64
	switch {
	case initAmount != nil:
		amount = *initAmount
	case account.Kind == models.AccountUser:
		amount = s.initialBalance
	}

	init := models.NewMint(account, amount, issuer.ID)
	if err := s.commit(ctx, &init); err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent initialization; the
			// committed row is the account's balance.
			return s.FindBalance(ctx, account)
		}
		s.logger.Error("failed to initialize account",
			zap.String("account", account.String()), zap.Error(err))
		return models.Transaction{}, ErrUnknown
	}
	return init, nil
}

// Offer splits the sender's balance into an offer of the given amount to
// the receiver and a rest state keeping the remainder with the sender.
// Both rows consume the prior balance in one atomic commit, so their
// totals always partition it exactly.
func (s *LedgerService) Offer(ctx context.Context, sender, receiver models.Account, amount int64, note *string, issuer *models.AuthenticatedUser) (OfferResult, error) {
	balance, err := s.BalanceOrInit(ctx, sender, nil, issuer)
	if err != nil {
		return OfferResult{}, err
	}

	total := balance.Total()
	if total < amount {
		return OfferResult{}, ErrInsufficientFunds
	}

	offer := models.NewTransfer(sender, receiver, &balance, amount, note, issuer.ID)
	rest := models.NewTransfer(sender, sender, &balance, total-amount, nil, issuer.ID)

	if err := s.commit(ctx, &offer, &rest); err != nil {
		if errors.Is(err, ErrAlreadyUsedTransaction) {
			return OfferResult{}, err
		}
		return OfferResult{}, ErrUnknown
	}
	return OfferResult{Offer: offer, Rest: rest}, nil
}

// Accept merges an offer into the receiver's balance.
func (s *LedgerService) Accept(ctx context.Context, offer *models.Transaction, issuer *models.AuthenticatedUser) (models.Transaction, error) {
	if offer.IsUsed() {
		return models.Transaction{}, ErrAlreadyUsedTransaction
	}

	balance, err := s.BalanceOrInit(ctx, offer.ReceiverAccount(), nil, issuer)
	if err != nil {
		return models.Transaction{}, err
	}

	merged := models.NewMergeAll(offer, &balance, models.StrPtr("offer accepted"), issuer.ID)
	if err := s.commit(ctx, &merged); err != nil {
		if errors.Is(err, ErrAlreadyUsedTransaction) {
			return models.Transaction{}, err
		}
		return models.Transaction{}, ErrUnknown
	}
	return merged, nil
}

// Reject offers the full amount back to the original sender. Neither
// party's balance is touched; the sender gets a reverse offer to accept.
func (s *LedgerService) Reject(ctx context.Context, offer *models.Transaction, note *string, issuer *models.AuthenticatedUser) (models.Transaction, error) {
	if offer.IsUsed() {
		return models.Transaction{}, ErrAlreadyUsedTransaction
	}

	reverse := models.NewTransfer(
		offer.ReceiverAccount(), offer.SenderAccount(),
		offer, offer.Total(), note, issuer.ID,
	)
	if err := s.commit(ctx, &reverse); err != nil {
		if errors.Is(err, ErrAlreadyUsedTransaction) {
			return models.Transaction{}, err
		}
		return models.Transaction{}, ErrUnknown
	}
	return reverse, nil
}

// Rescind reclaims an unaccepted offer by merging it back into the
// sender's own balance.
func (s *LedgerService) Rescind(ctx context.Context, offer *models.Transaction, issuer *models.AuthenticatedUser) (models.Transaction, error) {
	if offer.IsUsed() {
		return models.Transaction{}, ErrAlreadyUsedTransaction
	}

	balance, err := s.BalanceOrInit(ctx, offer.SenderAccount(), nil, issuer)
	if err != nil {
		return models.Transaction{}, err
	}

	merged := models.NewMergeAll(offer, &balance, models.StrPtr("offer rescinded"), issuer.ID)
	if err := s.commit(ctx, &merged); err != nil {
		if errors.Is(err, ErrAlreadyUsedTransaction) {
			return models.Transaction{}, err
		}
		return models.Transaction{}, ErrUnknown
	}
	return merged, nil
}

// PartiallyAccept merges part of an offer into the receiver's balance and
// offers the remainder back to the sender, in one atomic batch. The
// accepted amount is clamped to the offer's total; negative amounts are
// erroneous.
func (s *LedgerService) PartiallyAccept(ctx context.Context, offer *models.Transaction, amount int64, note *string, issuer *models.AuthenticatedUser) (PartialAcceptResult, error) {
	if offer.IsUsed() {
		return PartialAcceptResult{}, ErrAlreadyUsedTransaction
	}
	if amount < 0 {
		return PartialAcceptResult{}, ErrErroneousTransaction
	}

	offered := offer.Total()
	accepted := min(amount, offered)

	balance, err := s.BalanceOrInit(ctx, offer.ReceiverAccount(), nil, issuer)
	if err != nil {
		return PartialAcceptResult{}, err
	}

	returned := models.NewTransfer(
		offer.ReceiverAccount(), offer.SenderAccount(),
		offer, offered-accepted, note, issuer.ID,
	)
	merged := models.NewMerge(offer, &balance, accepted, models.StrPtr("offer accepted"), issuer.ID)

	if err := s.commit(ctx, &returned, &merged); err != nil {
		if errors.Is(err, ErrAlreadyUsedTransaction) {
			return PartialAcceptResult{}, err
		}
		return PartialAcceptResult{}, ErrUnknown
	}
	return PartialAcceptResult{Returned: returned, Merged: merged}, nil
}

// Inject mints the given amount by initializing a throwaway system account
// and offering its whole balance to the receiver. System receivers
// auto-accept, so the injected value lands in their balance directly. The
// chain is three commits, each independently atomic.
func (s *LedgerService) Inject(ctx context.Context, receiver models.Account, amount int64, note *string, issuer *models.AuthenticatedUser) (InjectResult, error) {
	if !receiver.IsValid() {
		return InjectResult{}, ErrUnauthorizedTransaction
	}

	tmp := models.SystemAccount(fmt.Sprintf("tmp-%s", uuid.New()))

	init := models.NewMint(tmp, amount, issuer.ID)
	if err := s.commit(ctx, &init); err != nil {
		return InjectResult{}, ErrUnknown
	}

	offer := models.NewTransfer(tmp, receiver, &init, amount, note, issuer.ID)
	if err := s.commit(ctx, &offer); err != nil {
		return InjectResult{}, ErrUnknown
	}

	if receiver.Kind == models.AccountUser {
		return InjectResult{Init: init, Offer: offer}, nil
	}

	balance, err := s.BalanceOrInit(ctx, receiver, nil, issuer)
	if err != nil {
		return InjectResult{}, err
	}
	merged := models.NewMergeAll(&offer, &balance, models.StrPtr("asset injection"), issuer.ID)
	if err := s.commit(ctx, &merged); err != nil {
		s.logger.Error("failed to merge injected offer", zap.Error(err))
		return InjectResult{}, ErrUnknown
	}
	return InjectResult{Init: init, Offer: offer, Merged: &merged}, nil
}
