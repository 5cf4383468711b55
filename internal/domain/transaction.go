package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Signed turns a positive amount into the delta applied to the balance.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == Withdrawal {
		return amount.Neg()
	}
	return amount
}

type Transaction struct {
	ID                      uuid.UUID       `json:"id"`
	AccountID               int64           `json:"account_id"`
	Amount                  decimal.Decimal `json:"amount"`
	Type                    TransactionType `json:"transaction_type"`
	BalanceAfterTransaction decimal.Decimal `json:"balance_after_transaction"`
	Timestamp               time.Time       `json:"timestamp"`
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	// ListByOwner returns the owner's transactions in timestamp order, limited to
	// the given range when it is not nil.
	ListByOwner(ctx context.Context, ownerID int64, dateRange *DateRange) ([]Transaction, error)
}
