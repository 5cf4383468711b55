package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

// provisionAttempts bounds retries when two owners race for the same account number.
const provisionAttempts = 3

type AccountService struct {
	store          domain.Store
	firstAccountNo int64
	logger         *slog.Logger
}

func NewAccountService(store domain.Store, firstAccountNo int64, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:          store,
		firstAccountNo: firstAccountNo,
		logger:         logger,
	}
}

func (s *AccountService) GetAccount(ctx context.Context, ownerID int64) (*domain.Account, error) {
	if ownerID <= 0 {
		return nil, errors.ErrInvalidUserID
	}
	return s.store.Accounts().GetByOwner(ctx, ownerID)
}

// GetOrCreateAccount returns the owner's account, creating one with the first
// account type and the next account number when the owner has none.
func (s *AccountService) GetOrCreateAccount(ctx context.Context, ownerID int64) (*domain.Account, bool, error) {
	account, err := s.store.Accounts().GetByOwner(ctx, ownerID)
	if err == nil {
		return account, false, nil
	}
	if !stderrors.Is(err, errors.ErrAccountNotFound) {
		return nil, false, err
	}

	accountType, err := s.store.AccountTypes().First(ctx)
	if err != nil {
		return nil, false, err
	}

	for attempt := 1; attempt <= provisionAttempts; attempt++ {
		account = &domain.Account{
			OwnerID:       ownerID,
			AccountTypeID: accountType.ID,
			AccountType:   accountType,
			Balance:       decimal.Zero,
		}

		err = s.store.Accounts().Create(ctx, account, s.firstAccountNo)
		switch {
		case err == nil:
			s.logger.Info("Provisioned account", "owner_id", ownerID, "account_no", account.AccountNo, "account_type", accountType.Name)
			return account, true, nil
		case stderrors.Is(err, errors.ErrDuplicateAccount):
			// A concurrent request created it first.
			existing, getErr := s.store.Accounts().GetByOwner(ctx, ownerID)
			return existing, false, getErr
		case stderrors.Is(err, errors.ErrDuplicateAccountNo):
			s.logger.Warn("Retrying account provisioning", "owner_id", ownerID, "attempt", attempt)
			continue
		default:
			return nil, false, err
		}
	}

	return nil, false, err
}
