package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

type accountTypeRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountTypeRepository(db SQLExecutor, logger *slog.Logger) domain.AccountTypeRepository {
	return &accountTypeRepository{
		db:     db,
		logger: logger,
	}
}

// First returns the account type with the lowest id, used as the default for
// auto-provisioned accounts.
func (r *accountTypeRepository) First(ctx context.Context) (*domain.AccountType, error) {
	query := `
		SELECT id, name, maximum_withdrawal_amount, interest_calculation_per_year
		FROM account_types ORDER BY id LIMIT 1
	`
	return r.scan(ctx, query)
}

func (r *accountTypeRepository) Get(ctx context.Context, id int64) (*domain.AccountType, error) {
	query := `
		SELECT id, name, maximum_withdrawal_amount, interest_calculation_per_year
		FROM account_types WHERE id = $1
	`
	return r.scan(ctx, query, id)
}

func (r *accountTypeRepository) scan(ctx context.Context, query string, args ...interface{}) (*domain.AccountType, error) {
	var t domain.AccountType
	var maxStr string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(&t.ID, &t.Name, &maxStr, &t.InterestCalculationPerYear)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("No account type available", "args", args)
			return nil, errors.ErrNoAccountType
		}
		r.logger.Error("Failed to get account type", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account type").WithDetails(err.Error())
	}

	maxAmount, err := decimal.NewFromString(maxStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse maximum withdrawal amount").WithDetails(err.Error())
	}
	t.MaximumWithdrawalAmount = maxAmount
	return &t, nil
}
