package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

const (
	uniqueViolation = "23505"

	ownerUniqueConstraint     = "accounts_owner_id_key"
	accountNoUniqueConstraint = "accounts_account_no_key"
)

const selectAccount = `
	SELECT a.id, a.owner_id, a.account_no, a.account_type_id, a.balance,
	       a.initial_deposit_date, a.interest_start_date, a.created_at, a.updated_at,
	       t.id, t.name, t.maximum_withdrawal_amount, t.interest_calculation_per_year
	FROM accounts a
	JOIN account_types t ON t.id = a.account_type_id
`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account, firstAccountNo int64) error {
	query := `
		INSERT INTO accounts (owner_id, account_no, account_type_id, balance, created_at, updated_at)
		SELECT $1, COALESCE(MAX(account_no), $2) + 1, $3, $4, $5, $5
		FROM accounts
		RETURNING id, account_no
	`

	now := time.Now().UTC()
	err := r.db.QueryRowContext(
		ctx,
		query,
		account.OwnerID,
		firstAccountNo,
		account.AccountTypeID,
		account.Balance.String(),
		now,
	).Scan(&account.ID, &account.AccountNo)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case ownerUniqueConstraint:
				r.logger.Warn("Duplicate account creation attempt", "owner_id", account.OwnerID)
				return errors.ErrDuplicateAccount
			case accountNoUniqueConstraint:
				r.logger.Warn("Account number collision", "owner_id", account.OwnerID)
				return errors.ErrDuplicateAccountNo
			}
		}
		r.logger.Error("Failed to create account", "owner_id", account.OwnerID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID, "account_no", account.AccountNo, "owner_id", account.OwnerID)
	return nil
}

func (r *accountRepository) GetByOwner(ctx context.Context, ownerID int64) (*domain.Account, error) {
	return r.scanAccount(ctx, selectAccount+` WHERE a.owner_id = $1`, ownerID)
}

func (r *accountRepository) GetByOwnerForUpdate(ctx context.Context, ownerID int64) (*domain.Account, error) {
	return r.scanAccount(ctx, selectAccount+` WHERE a.owner_id = $1 FOR UPDATE OF a`, ownerID)
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	return r.scanAccount(ctx, selectAccount+` WHERE a.id = $1 FOR UPDATE OF a`, id)
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, arg int64) (*domain.Account, error) {
	var account domain.Account
	var accountType domain.AccountType
	var balanceStr, maxWithdrawalStr string
	var initialDeposit, interestStart sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.OwnerID,
		&account.AccountNo,
		&account.AccountTypeID,
		&balanceStr,
		&initialDeposit,
		&interestStart,
		&account.CreatedAt,
		&account.UpdatedAt,
		&accountType.ID,
		&accountType.Name,
		&maxWithdrawalStr,
		&accountType.InterestCalculationPerYear,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "arg", arg, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_id", account.ID, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}
	maxWithdrawal, err := decimal.NewFromString(maxWithdrawalStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse maximum withdrawal amount").WithDetails(err.Error())
	}

	account.Balance = balance
	accountType.MaximumWithdrawalAmount = maxWithdrawal
	account.AccountType = &accountType
	if initialDeposit.Valid {
		d := domain.DateOf(initialDeposit.Time)
		account.InitialDepositDate = &d
	}
	if interestStart.Valid {
		d := domain.DateOf(interestStart.Time)
		account.InterestStartDate = &d
	}
	return &account, nil
}

func (r *accountRepository) MarkInitialDeposit(ctx context.Context, id int64, depositDate, interestStart time.Time) error {
	query := `
		UPDATE accounts
		SET initial_deposit_date = $1, interest_start_date = $2, updated_at = $3
		WHERE id = $4 AND initial_deposit_date IS NULL
	`

	_, err := r.db.ExecContext(ctx, query,
		depositDate.Format(domain.DateLayout),
		interestStart.Format(domain.DateLayout),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to mark initial deposit", "account_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to mark initial deposit").WithDetails(err.Error())
	}

	r.logger.Info("Initial deposit recorded", "account_id", id, "interest_start_date", interestStart.Format(domain.DateLayout))
	return nil
}

func (r *accountRepository) ApplyDelta(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3
		RETURNING balance
	`

	var balanceStr string
	err := r.db.QueryRowContext(ctx, query, delta.String(), time.Now().UTC(), id).Scan(&balanceStr)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("No account found to update", "account_id", id)
			return decimal.Zero, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to update account balance", "account_id", id, "error", err)
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to update account balance").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	r.logger.Info("Account balance updated", "account_id", id, "delta", delta, "new_balance", balance)
	return balance, nil
}
