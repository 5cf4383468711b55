package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
	"ledger-service/internal/repository"
)

// collidingStore hands out account numbers that are already taken a fixed
// number of times before delegating.
type collidingStore struct {
	*repository.MemoryStore
	collisions int
}

func (s *collidingStore) Accounts() domain.AccountRepository {
	return &collidingAccounts{AccountRepository: s.MemoryStore.Accounts(), store: s}
}

type collidingAccounts struct {
	domain.AccountRepository
	store *collidingStore
}

func (r *collidingAccounts) Create(ctx context.Context, account *domain.Account, firstAccountNo int64) error {
	if r.store.collisions > 0 {
		r.store.collisions--
		return errors.ErrDuplicateAccountNo
	}
	return r.AccountRepository.Create(ctx, account, firstAccountNo)
}

func TestGetOrCreateAccountRetriesOnNumberCollision(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &collidingStore{MemoryStore: repository.NewMemoryStore(repository.DefaultAccountTypes()...), collisions: 2}
	svc := NewAccountService(store, 500, logger)

	account, created, err := svc.GetOrCreateAccount(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(501), account.AccountNo)
	assert.True(t, account.Balance.Equal(decimal.Zero))
}

func TestGetOrCreateAccountGivesUpAfterRepeatedCollisions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &collidingStore{MemoryStore: repository.NewMemoryStore(repository.DefaultAccountTypes()...), collisions: provisionAttempts}
	svc := NewAccountService(store, 500, logger)

	_, _, err := svc.GetOrCreateAccount(context.Background(), 9)
	assert.ErrorIs(t, err, errors.ErrDuplicateAccountNo)
}

func TestGetOrCreateAccountReturnsExisting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore(repository.DefaultAccountTypes()...)
	svc := NewAccountService(store, 500, logger)

	first, created, err := svc.GetOrCreateAccount(context.Background(), 9)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := svc.GetOrCreateAccount(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	got, err := svc.GetAccount(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, first.AccountNo, got.AccountNo)

	_, err = svc.GetAccount(context.Background(), 10)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}
