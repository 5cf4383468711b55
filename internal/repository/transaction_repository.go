package repository

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, account_id, amount, transaction_type, balance_after_transaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		tx.ID,
		tx.AccountID,
		tx.Amount.String(),
		string(tx.Type),
		tx.BalanceAfterTransaction.String(),
		tx.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			"account_id", tx.AccountID,
			"amount", tx.Amount,
			"transaction_type", tx.Type,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "transaction_type", tx.Type)
	return nil
}

func (r *transactionRepository) ListByOwner(ctx context.Context, ownerID int64, dateRange *domain.DateRange) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.account_id, t.amount, t.transaction_type, t.balance_after_transaction, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.owner_id = $1
	`
	args := []interface{}{ownerID}
	if dateRange != nil {
		query += ` AND (t.created_at AT TIME ZONE 'UTC')::date BETWEEN $2 AND $3`
		args = append(args, dateRange.Start.Format(domain.DateLayout), dateRange.End.Format(domain.DateLayout))
	}
	query += ` ORDER BY t.created_at, t.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "owner_id", ownerID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		var amountStr, balanceStr, typ string
		if err := rows.Scan(&t.ID, &t.AccountID, &amountStr, &typ, &balanceStr, &t.Timestamp); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
		}
		if t.BalanceAfterTransaction, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
		}
		t.Type = domain.TransactionType(typ)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}

	return transactions, nil
}
