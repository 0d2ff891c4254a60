package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the single persisted record type of the ledger. Rows are
// immutable once created; the only state change ever applied is flipping
// Consumed/Merged from false to true, exactly once, atomically with the
// insertion of the row that references them.
//
// A row either represents a settled balance of one account (IsState) or an
// open, actionable offer. Each row optionally spends (Consumes) one prior
// row and folds in (Merges) one prior settled-state row, forming a DAG
// rooted at mint transactions.
type Transaction struct {
	ID *uuid.UUID `json:"id" db:"id"`

	Sender      *uuid.UUID `json:"sender" db:"sender"`
	Receiver    *uuid.UUID `json:"receiver" db:"receiver"`
	SenderSys   *string    `json:"sender_sys" db:"sender_sys"`
	ReceiverSys *string    `json:"receiver_sys" db:"receiver_sys"`

	Consumes      *uuid.UUID `json:"consumes" db:"consumes"`
	Merges        *uuid.UUID `json:"merges" db:"merges"`
	ConsumedValue int64      `json:"consumed_value" db:"consumed_value"`
	MergedValue   int64      `json:"merged_value" db:"merged_value"`

	IsState  bool    `json:"is_state" db:"is_state"`
	Consumed bool    `json:"consumed" db:"consumed"`
	Merged   bool    `json:"merged" db:"merged"`
	Note     *string `json:"note" db:"note"`

	IssuedBy  uuid.UUID `json:"issued_by" db:"issued_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Total is the full value carried by this transaction.
func (t *Transaction) Total() int64 {
	return t.ConsumedValue + t.MergedValue
}

// IsUsed reports whether some other transaction already references this
// one, as consumption or as a merge. A used transaction is spent forever.
func (t *Transaction) IsUsed() bool {
	return t.Consumed || t.Merged
}

func (t *Transaction) IsOffer() bool {
	return !t.IsState
}

func (t *Transaction) SenderAccount() Account {
	return AccountFromColumns(t.Sender, t.SenderSys)
}

func (t *Transaction) ReceiverAccount() Account {
	return AccountFromColumns(t.Receiver, t.ReceiverSys)
}

// IsUsableByUser reports whether the user is a party to this transaction.
func (t *Transaction) IsUsableByUser(userID uuid.UUID) bool {
	return (t.Sender != nil && *t.Sender == userID) ||
		(t.Receiver != nil && *t.Receiver == userID)
}

// IsUsableOfferFrom reports whether this is an unspent offer sent by the
// given user, i.e. one they may still rescind or spend as a bid payment.
func (t *Transaction) IsUsableOfferFrom(userID uuid.UUID) bool {
	return t.IsOffer() && !t.IsUsed() && t.Sender != nil && *t.Sender == userID
}

// IsUsableOfferTo reports whether this is an unspent offer addressed to
// the given user, i.e. one they may still accept or reject.
func (t *Transaction) IsUsableOfferTo(userID uuid.UUID) bool {
	return t.IsOffer() && !t.IsUsed() && t.Receiver != nil && *t.Receiver == userID
}

// NewMint builds a root state transaction granting the account the given
// amount out of nothing. Used for account initialization and injection.
func NewMint(account Account, amount int64, issuedBy uuid.UUID) Transaction {
	receiver, receiverSys := account.Columns()
	return Transaction{
		Receiver:      receiver,
		ReceiverSys:   receiverSys,
		ConsumedValue: amount,
		IsState:       true,
		IssuedBy:      issuedBy,
	}
}

// NewTransfer builds a transaction moving value from sender to receiver by
// spending a prior transaction. The row is a settled state only when the
// value stays with its owner (sender == receiver), otherwise it is an open
// offer awaiting accept/reject/rescind.
func NewTransfer(sender, receiver Account, consumed *Transaction, amount int64, note *string, issuedBy uuid.UUID) Transaction {
	senderID, senderSys := sender.Columns()
	receiverID, receiverSys := receiver.Columns()
	return Transaction{
		Sender:        senderID,
		SenderSys:     senderSys,
		Receiver:      receiverID,
		ReceiverSys:   receiverSys,
		Consumes:      consumed.ID,
		ConsumedValue: amount,
		IsState:       sender.Equal(receiver),
		Note:          note,
		IssuedBy:      issuedBy,
	}
}

// NewMerge builds the settled state resulting from folding an offer into a
// prior balance. The new row consumes the offer (up to the given amount,
// clamped to the offer's total) and merges the prior state, so its total is
// accepted + state.Total(). Ownership follows the merged-into state.
func NewMerge(offer, state *Transaction, amount int64, note *string, issuedBy uuid.UUID) Transaction {
	accepted := min(amount, offer.Total())
	return Transaction{
		Sender:        state.Receiver,
		SenderSys:     state.ReceiverSys,
		Receiver:      state.Receiver,
		ReceiverSys:   state.ReceiverSys,
		Consumes:      offer.ID,
		ConsumedValue: accepted,
		Merges:        state.ID,
		MergedValue:   state.Total(),
		IsState:       true,
		Note:          note,
		IssuedBy:      issuedBy,
	}
}

// NewMergeAll is NewMerge over the offer's full value.
func NewMergeAll(offer, state *Transaction, note *string, issuedBy uuid.UUID) Transaction {
	return NewMerge(offer, state, offer.Total(), note, issuedBy)
}

func StrPtr(s string) *string {
	return &s
}
