package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/errors"
)

type AccountType struct {
	ID                         int64           `json:"id"`
	Name                       string          `json:"name"`
	MaximumWithdrawalAmount    decimal.Decimal `json:"maximum_withdrawal_amount"`
	InterestCalculationPerYear int             `json:"interest_calculation_per_year"`
}

// InterestIntervalMonths is the number of months between interest postings.
// InterestCalculationPerYear must divide 12.
func (t *AccountType) InterestIntervalMonths() (int, error) {
	n := t.InterestCalculationPerYear
	if n <= 0 || 12%n != 0 {
		return 0, errors.ErrInvalidAccountType.WithDetails(t.Name)
	}
	return 12 / n, nil
}

type Account struct {
	ID                 int64           `json:"id"`
	OwnerID            int64           `json:"owner_id"`
	AccountNo          int64           `json:"account_no"`
	AccountTypeID      int64           `json:"account_type_id"`
	AccountType        *AccountType    `json:"account_type,omitempty"`
	Balance            decimal.Decimal `json:"balance"`
	InitialDepositDate *time.Time      `json:"initial_deposit_date,omitempty"`
	InterestStartDate  *time.Time      `json:"interest_start_date,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type AccountRepository interface {
	// GetByOwner returns errors.ErrAccountNotFound when the owner has no account.
	GetByOwner(ctx context.Context, ownerID int64) (*Account, error)
	// GetByOwnerForUpdate locks the owner's account row until the surrounding
	// transaction ends.
	GetByOwnerForUpdate(ctx context.Context, ownerID int64) (*Account, error)
	GetForUpdate(ctx context.Context, id int64) (*Account, error)
	// Create assigns the next sequential account number, starting after
	// firstAccountNo when no account exists yet.
	Create(ctx context.Context, account *Account, firstAccountNo int64) error
	// MarkInitialDeposit sets the first-deposit dates unless they are already set.
	MarkInitialDeposit(ctx context.Context, id int64, depositDate, interestStart time.Time) error
	// ApplyDelta adds delta to the stored balance as a relative update and
	// returns the balance the storage layer holds afterwards.
	ApplyDelta(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}

type AccountTypeRepository interface {
	First(ctx context.Context) (*AccountType, error)
	Get(ctx context.Context, id int64) (*AccountType, error)
}

// Store is the unit of work shared by the postgres and in-memory backends.
type Store interface {
	Accounts() AccountRepository
	AccountTypes() AccountTypeRepository
	Transactions() TransactionRepository
	WithTransaction(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
