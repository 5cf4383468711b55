package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
	"ledger-service/internal/validation"
)

// Option customises a TransactionService.
type Option func(*TransactionService)

// WithClock replaces time.Now for first-deposit bookkeeping and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) {
		s.now = now
	}
}

type TransactionService struct {
	store     domain.Store
	accounts  *AccountService
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewTransactionService(
	store domain.Store,
	accounts *AccountService,
	validator *validation.Validator,
	logger *slog.Logger,
	opts ...Option,
) *TransactionService {
	s := &TransactionService{
		store:     store,
		accounts:  accounts,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report is the transaction listing for one owner.
type Report struct {
	Account      *domain.Account      `json:"account,omitempty"`
	Transactions []domain.Transaction `json:"transactions"`
}

// Deposit validates the amount, provisions an account for first-time owners, and
// applies the deposit under the account row lock.
func (s *TransactionService) Deposit(ctx context.Context, ownerID int64, amount *decimal.Decimal) (*domain.Transaction, error) {
	if ownerID <= 0 {
		return nil, errors.ErrInvalidUserID
	}

	value, err := s.validator.ValidateDeposit(amount)
	if err != nil {
		s.logger.Warn("Deposit rejected", "owner_id", ownerID, "error", err)
		return nil, err
	}
	s.logger.Info("Processing deposit", "owner_id", ownerID, "amount", value.String())

	account, _, err := s.accounts.GetOrCreateAccount(ctx, ownerID)
	if err != nil {
		s.logger.Error("Deposit failed: no account available", "owner_id", ownerID, "error", err)
		return nil, err
	}

	var transaction *domain.Transaction
	err = s.store.WithTransaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Accounts().GetForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}

		if locked.InitialDepositDate == nil {
			if err := s.markInitialDeposit(ctx, tx, locked); err != nil {
				return err
			}
		}

		transaction, err = s.applyDelta(ctx, tx, locked, domain.Deposit, value)
		return err
	})
	if err != nil {
		s.logger.Error("Deposit failed", "owner_id", ownerID, "error", err)
		return nil, err
	}

	s.logger.Info("Deposit completed successfully",
		"transaction_id", transaction.ID,
		"balance_after_transaction", transaction.BalanceAfterTransaction)
	return transaction, nil
}

// Withdraw locks the owner's account, validates against the locked state and
// applies the withdrawal. A failed validation leaves the account untouched.
func (s *TransactionService) Withdraw(ctx context.Context, ownerID int64, amount *decimal.Decimal) (*domain.Transaction, error) {
	s.logger.Info("Processing withdrawal", "owner_id", ownerID, "amount", formatAmount(amount))

	if ownerID <= 0 {
		return nil, errors.ErrInvalidUserID
	}

	var transaction *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Accounts().GetByOwnerForUpdate(ctx, ownerID)
		if err != nil && !stderrors.Is(err, errors.ErrAccountNotFound) {
			return err
		}

		value, err := s.validator.ValidateWithdrawal(amount, locked)
		if err != nil {
			return err
		}

		transaction, err = s.applyDelta(ctx, tx, locked, domain.Withdrawal, value)
		return err
	})
	if err != nil {
		s.logger.Warn("Withdrawal rejected", "owner_id", ownerID, "error", err)
		return nil, err
	}

	s.logger.Info("Withdrawal completed successfully",
		"transaction_id", transaction.ID,
		"balance_after_transaction", transaction.BalanceAfterTransaction)
	return transaction, nil
}

// ListTransactions returns the owner's transactions, filtered by the optional
// "YYYY-MM-DD - YYYY-MM-DD" range.
func (s *TransactionService) ListTransactions(ctx context.Context, ownerID int64, dateRange string) (*Report, error) {
	if ownerID <= 0 {
		return nil, errors.ErrInvalidUserID
	}

	r, err := validation.ParseDateRange(dateRange)
	if err != nil {
		return nil, err
	}

	transactions, err := s.store.Transactions().ListByOwner(ctx, ownerID, r)
	if err != nil {
		return nil, err
	}

	report := &Report{Transactions: transactions}
	account, err := s.store.Accounts().GetByOwner(ctx, ownerID)
	switch {
	case err == nil:
		report.Account = account
	case !stderrors.Is(err, errors.ErrAccountNotFound):
		return nil, err
	}
	return report, nil
}

// applyDelta is the single balance mutation used by both directions. It must run
// inside a transaction that holds the account row lock.
func (s *TransactionService) applyDelta(
	ctx context.Context,
	tx domain.Store,
	account *domain.Account,
	kind domain.TransactionType,
	amount decimal.Decimal,
) (*domain.Transaction, error) {
	balance, err := tx.Accounts().ApplyDelta(ctx, account.ID, kind.Signed(amount))
	if err != nil {
		return nil, err
	}

	transaction := &domain.Transaction{
		ID:                      uuid.New(),
		AccountID:               account.ID,
		Amount:                  amount,
		Type:                    kind,
		BalanceAfterTransaction: balance,
		Timestamp:               s.now().UTC(),
	}
	if err := tx.Transactions().Create(ctx, transaction); err != nil {
		return nil, err
	}

	account.Balance = balance
	return transaction, nil
}

func (s *TransactionService) markInitialDeposit(ctx context.Context, tx domain.Store, account *domain.Account) error {
	if account.AccountType == nil {
		return errors.ErrNoAccountType
	}
	months, err := account.AccountType.InterestIntervalMonths()
	if err != nil {
		return err
	}

	today := domain.DateOf(s.now())
	interestStart := domain.AddMonths(today, months)
	if err := tx.Accounts().MarkInitialDeposit(ctx, account.ID, today, interestStart); err != nil {
		return err
	}

	account.InitialDepositDate = &today
	account.InterestStartDate = &interestStart
	return nil
}

func formatAmount(amount *decimal.Decimal) string {
	if amount == nil {
		return ""
	}
	return amount.String()
}
