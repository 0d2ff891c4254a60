package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

// DefaultInitialBalance is granted to accounts on first contact when no
// configured value overrides it.
const DefaultInitialBalance int64 = 10

// LedgerService owns the transactions table: atomic multi-row commits,
// balance lookups and offer/history queries. All mutation goes through
// commit, which enforces the single-use invariant: a predecessor row can
// be consumed by at most one descendant and merged by at most one, ever.
type LedgerService struct {
	db             *sql.DB
	logger         *zap.Logger
	initialBalance int64
}

func NewLedgerService(db *sql.DB, logger *zap.Logger, initialBalance int64) *LedgerService {
	if initialBalance <= 0 {
		initialBalance = DefaultInitialBalance
	}
	return &LedgerService{
		db:             db,
		logger:         logger,
		initialBalance: initialBalance,
	}
}

const transactionColumns = `
	id, sender, receiver, sender_sys, receiver_sys,
	consumes, consumed_value, merges, merged_value,
	is_state, consumed, merged, note, issued_by, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(
		&tx.ID, &tx.Sender, &tx.Receiver, &tx.SenderSys, &tx.ReceiverSys,
		&tx.Consumes, &tx.ConsumedValue, &tx.Merges, &tx.MergedValue,
		&tx.IsState, &tx.Consumed, &tx.Merged, &tx.Note, &tx.IssuedBy, &tx.CreatedAt,
	)
	return tx, err
}

// GetTransaction fetches one transaction by id.
func (s *LedgerService) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tx, ErrTransactionNotFound
	}
	if err != nil {
		return tx, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// FindBalance returns the account's current balance transaction: its only
// unconsumed, unmerged state row. Returns ErrTransactionNotFound when the
// account has no state yet.
func (s *LedgerService) FindBalance(ctx context.Context, account models.Account) (models.Transaction, error) {
	var row *sql.Row
	switch account.Kind {
	case models.AccountUser:
		row = s.db.QueryRowContext(ctx,
			`SELECT`+transactionColumns+` FROM transactions
			 WHERE receiver = $1 AND is_state = true
			   AND consumed = false AND merged = false`, account.UserID)
	case models.AccountSystem:
		row = s.db.QueryRowContext(ctx,
			`SELECT`+transactionColumns+` FROM transactions
			 WHERE receiver_sys = $1 AND is_state = true
			   AND consumed = false AND merged = false`, account.System)
	default:
		return models.Transaction{}, ErrTransactionNotFound
	}

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tx, ErrTransactionNotFound
	}
	if err != nil {
		return tx, fmt.Errorf("find balance: %w", err)
	}
	return tx, nil
}

// FindOpenOffers lists unspent offers addressed to the account.
func (s *LedgerService) FindOpenOffers(ctx context.Context, account models.Account, offset, limit int) ([]models.Transaction, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch account.Kind {
	case models.AccountUser:
		rows, err = s.db.QueryContext(ctx,
			`SELECT`+transactionColumns+` FROM transactions
			 WHERE receiver = $1 AND is_state = false
			   AND consumed = false AND merged = false
			 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
			account.UserID, offset, limit)
	case models.AccountSystem:
		rows, err = s.db.QueryContext(ctx,
			`SELECT`+transactionColumns+` FROM transactions
			 WHERE receiver_sys = $1 AND is_state = false
			   AND consumed = false AND merged = false
			 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
			account.System, offset, limit)
	default:
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open offers: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// TransactionHistory lists transactions the user participated in, newest
// first.
func (s *LedgerService) TransactionHistory(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+transactionColumns+` FROM transactions
		 WHERE sender = $1 OR receiver = $1
		 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// commit persists the given new rows in one database transaction. For every
// distinct predecessor they reference, the matching used-flag is flipped
// with a conditional update; zero affected rows means a prior commit got
// there first, and the whole batch aborts with ErrAlreadyUsedTransaction.
// Sibling rows within one batch may share a predecessor (a split partitions
// one balance across both halves), so each predecessor is flipped once per
// batch. The conditional update takes a row lock, so of two concurrent
// commits spending the same predecessor only the first wins.
//
// The passed transactions are updated in place with their assigned ids and
// timestamps.
func (s *LedgerService) commit(ctx context.Context, txs ...*models.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer dbTx.Rollback()

	type usedRef struct {
		flag string
		id   uuid.UUID
	}
	flipped := map[usedRef]bool{}
	for _, tx := range txs {
		if tx.Consumes != nil {
			ref := usedRef{"consumed", *tx.Consumes}
			if !flipped[ref] {
				if err := s.flipUsedFlag(ctx, dbTx, ref.flag, ref.id); err != nil {
					return err
				}
				flipped[ref] = true
			}
		}
		if tx.Merges != nil {
			ref := usedRef{"merged", *tx.Merges}
			if !flipped[ref] {
				if err := s.flipUsedFlag(ctx, dbTx, ref.flag, ref.id); err != nil {
					return err
				}
				flipped[ref] = true
			}
		}
	}

	for _, tx := range txs {
		row := dbTx.QueryRowContext(ctx,
			`INSERT INTO transactions (
				sender, receiver, sender_sys, receiver_sys,
				consumes, consumed_value, merges, merged_value,
				is_state, note, issued_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, created_at`,
			tx.Sender, tx.Receiver, tx.SenderSys, tx.ReceiverSys,
			tx.Consumes, tx.ConsumedValue, tx.Merges, tx.MergedValue,
			tx.IsState, tx.Note, tx.IssuedBy,
		)
		if err := row.Scan(&tx.ID, &tx.CreatedAt); err != nil {
			s.logger.Error("failed to insert transaction", zap.Error(err))
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transactions: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique index conflict. The
// live-state indexes allow one unconsumed, unmerged state row per account,
// so a conflict means a concurrent commit created that row first.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

func (s *LedgerService) flipUsedFlag(ctx context.Context, dbTx *sql.Tx, flag string, id uuid.UUID) error {
	res, err := dbTx.ExecContext(ctx,
		`UPDATE transactions SET `+flag+` = true WHERE id = $1 AND `+flag+` = false`, id)
	if err != nil {
		s.logger.Error("failed to flip used flag",
			zap.String("flag", flag), zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("flip %s: %w", flag, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("flip %s: %w", flag, err)
	}
	if affected == 0 {
		return ErrAlreadyUsedTransaction
	}
	return nil
}
