package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
	"ledger-service/migrations"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sql.DB
	store     *Store
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx, "postgres:15-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err, "start postgres container")
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sql.Open("postgres", connStr)
	s.Require().NoError(err)
	s.db.SetMaxOpenConns(20)
	s.Require().NoError(migrations.Apply(s.ctx, s.db))
	// Applying twice must be harmless.
	s.Require().NoError(migrations.Apply(s.ctx, s.db))

	s.store = NewStore(s.db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE transactions, accounts RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) createAccount(ownerID int64) *domain.Account {
	accountType, err := s.store.AccountTypes().First(s.ctx)
	s.Require().NoError(err)

	account := &domain.Account{OwnerID: ownerID, AccountTypeID: accountType.ID, Balance: decimal.Zero}
	s.Require().NoError(s.store.Accounts().Create(s.ctx, account, 10000000))
	return account
}

func (s *PostgresStoreSuite) TestSeededAccountTypes() {
	first, err := s.store.AccountTypes().First(s.ctx)
	s.Require().NoError(err)
	s.Equal("Savings", first.Name)
	s.Equal(4, first.InterestCalculationPerYear)
	s.True(first.MaximumWithdrawalAmount.Equal(decimal.NewFromInt(50000)))

	second, err := s.store.AccountTypes().Get(s.ctx, first.ID+1)
	s.Require().NoError(err)
	s.Equal("Current", second.Name)
}

func (s *PostgresStoreSuite) TestCreateAssignsSequentialNumbers() {
	first := s.createAccount(1)
	second := s.createAccount(2)

	s.Equal(int64(10000001), first.AccountNo)
	s.Equal(int64(10000002), second.AccountNo)

	err := s.store.Accounts().Create(s.ctx, &domain.Account{OwnerID: 1, AccountTypeID: first.AccountTypeID}, 10000000)
	s.ErrorIs(err, errors.ErrDuplicateAccount)

	got, err := s.store.Accounts().GetByOwner(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(second.ID, got.ID)
	s.Equal("Savings", got.AccountType.Name)

	_, err = s.store.Accounts().GetByOwner(s.ctx, 3)
	s.ErrorIs(err, errors.ErrAccountNotFound)
}

func (s *PostgresStoreSuite) TestMarkInitialDepositOnlyOnce() {
	account := s.createAccount(1)

	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Accounts().MarkInitialDeposit(s.ctx, account.ID, jan, domain.AddMonths(jan, 3)))
	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Accounts().MarkInitialDeposit(s.ctx, account.ID, later, later))

	got, err := s.store.Accounts().GetByOwner(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(got.InitialDepositDate)
	s.Equal(jan, *got.InitialDepositDate)
	s.Equal(time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), *got.InterestStartDate)
}

func (s *PostgresStoreSuite) TestConcurrentRelativeUpdatesUnderRowLock() {
	account := s.createAccount(1)

	const workers = 25
	delta := decimal.RequireFromString("10.10")
	snapshots := make(chan decimal.Decimal, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.WithTransaction(s.ctx, func(tx domain.Store) error {
				if _, err := tx.Accounts().GetForUpdate(s.ctx, account.ID); err != nil {
					return err
				}
				balance, err := tx.Accounts().ApplyDelta(s.ctx, account.ID, delta)
				if err != nil {
					return err
				}
				snapshots <- balance
				return tx.Transactions().Create(s.ctx, &domain.Transaction{
					ID:                      uuid.New(),
					AccountID:               account.ID,
					Amount:                  delta,
					Type:                    domain.Deposit,
					BalanceAfterTransaction: balance,
					Timestamp:               time.Now().UTC(),
				})
			})
			s.NoError(err)
		}()
	}
	wg.Wait()
	close(snapshots)

	got, err := s.store.Accounts().GetByOwner(s.ctx, 1)
	s.Require().NoError(err)
	s.True(got.Balance.Equal(delta.Mul(decimal.NewFromInt(workers))), "balance %s", got.Balance)

	seen := map[string]bool{}
	for b := range snapshots {
		s.False(seen[b.String()], "snapshot %s observed twice", b)
		seen[b.String()] = true
	}
	s.Len(seen, workers)
}

func (s *PostgresStoreSuite) TestRollbackDiscardsDelta() {
	account := s.createAccount(1)

	err := s.store.WithTransaction(s.ctx, func(tx domain.Store) error {
		if _, err := tx.Accounts().ApplyDelta(s.ctx, account.ID, decimal.NewFromInt(500)); err != nil {
			return err
		}
		return errors.ErrNoAccountType
	})
	s.ErrorIs(err, errors.ErrNoAccountType)

	got, err := s.store.Accounts().GetByOwner(s.ctx, 1)
	s.Require().NoError(err)
	s.True(got.Balance.IsZero())
}

func (s *PostgresStoreSuite) TestListByOwnerDateRange() {
	mine := s.createAccount(1)
	theirs := s.createAccount(2)

	insert := func(accountID int64, ts time.Time) {
		s.Require().NoError(s.store.Transactions().Create(s.ctx, &domain.Transaction{
			ID:                      uuid.New(),
			AccountID:               accountID,
			Amount:                  decimal.NewFromInt(1),
			Type:                    domain.Deposit,
			BalanceAfterTransaction: decimal.NewFromInt(1),
			Timestamp:               ts,
		}))
	}
	insert(mine.ID, time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC))
	insert(mine.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	insert(mine.ID, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC))
	insert(mine.ID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	insert(theirs.ID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	all, err := s.store.Transactions().ListByOwner(s.ctx, 1, nil)
	s.Require().NoError(err)
	s.Len(all, 4)

	january, err := s.store.Transactions().ListByOwner(s.ctx, 1, &domain.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	s.Require().Len(january, 2)
	s.True(january[0].Timestamp.Before(january[1].Timestamp))
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}
