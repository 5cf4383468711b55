package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

// memoryState is everything the in-memory store persists.
type memoryState struct {
	accountTypes  []domain.AccountType
	accounts      map[int64]domain.Account
	transactions  []domain.Transaction
	nextAccountID int64
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		accountTypes:  append([]domain.AccountType(nil), s.accountTypes...),
		accounts:      make(map[int64]domain.Account, len(s.accounts)),
		transactions:  append([]domain.Transaction(nil), s.transactions...),
		nextAccountID: s.nextAccountID,
	}
	for id, a := range s.accounts {
		cp.accounts[id] = a
	}
	return cp
}

// MemoryStore implements domain.Store in process memory. A single mutex
// serialises all work, so every transaction holds an exclusive lock on every
// account. Transactions run against a copy that replaces the state on commit.
type MemoryStore struct {
	mu    *sync.Mutex
	state **memoryState
	inTx  bool
}

var _ domain.Store = (*MemoryStore)(nil)

func NewMemoryStore(accountTypes ...domain.AccountType) *MemoryStore {
	st := &memoryState{accounts: make(map[int64]domain.Account)}
	for i, t := range accountTypes {
		if t.ID == 0 {
			t.ID = int64(i + 1)
		}
		st.accountTypes = append(st.accountTypes, t)
	}
	return &MemoryStore{mu: &sync.Mutex{}, state: &st}
}

// DefaultAccountTypes mirrors the rows seeded by the SQL migrations.
func DefaultAccountTypes() []domain.AccountType {
	return []domain.AccountType{
		{ID: 1, Name: "Savings", MaximumWithdrawalAmount: decimal.RequireFromString("50000.00"), InterestCalculationPerYear: 4},
		{ID: 2, Name: "Current", MaximumWithdrawalAmount: decimal.RequireFromString("100000.00"), InterestCalculationPerYear: 12},
	}
}

func (s *MemoryStore) Accounts() domain.AccountRepository {
	return &memoryAccounts{store: s}
}

func (s *MemoryStore) AccountTypes() domain.AccountTypeRepository {
	return &memoryAccountTypes{store: s}
}

func (s *MemoryStore) Transactions() domain.TransactionRepository {
	return &memoryTransactions{store: s}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return errors.ErrCannotBeginTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := (*s.state).clone()
	txStore := &MemoryStore{mu: s.mu, state: &working, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}

	*s.state = working
	return nil
}

// view runs fn with the state locked. Inside a transaction the lock is already held.
func (s *MemoryStore) view(fn func(st *memoryState) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.state)
}

type memoryAccounts struct {
	store *MemoryStore
}

func (r *memoryAccounts) withType(st *memoryState, a domain.Account) *domain.Account {
	for i := range st.accountTypes {
		if st.accountTypes[i].ID == a.AccountTypeID {
			t := st.accountTypes[i]
			a.AccountType = &t
			break
		}
	}
	return &a
}

func (r *memoryAccounts) Create(_ context.Context, account *domain.Account, firstAccountNo int64) error {
	return r.store.view(func(st *memoryState) error {
		maxNo := firstAccountNo
		seen := false
		for _, a := range st.accounts {
			if a.OwnerID == account.OwnerID {
				return errors.ErrDuplicateAccount
			}
			if !seen || a.AccountNo > maxNo {
				maxNo = a.AccountNo
				seen = true
			}
		}

		now := time.Now().UTC()
		st.nextAccountID++
		account.ID = st.nextAccountID
		account.AccountNo = maxNo + 1
		account.CreatedAt = now
		account.UpdatedAt = now

		stored := *account
		stored.AccountType = nil
		st.accounts[account.ID] = stored
		return nil
	})
}

func (r *memoryAccounts) GetByOwner(_ context.Context, ownerID int64) (*domain.Account, error) {
	var found *domain.Account
	err := r.store.view(func(st *memoryState) error {
		for _, a := range st.accounts {
			if a.OwnerID == ownerID {
				found = r.withType(st, a)
				return nil
			}
		}
		return errors.ErrAccountNotFound
	})
	return found, err
}

func (r *memoryAccounts) GetByOwnerForUpdate(ctx context.Context, ownerID int64) (*domain.Account, error) {
	return r.GetByOwner(ctx, ownerID)
}

func (r *memoryAccounts) GetForUpdate(_ context.Context, id int64) (*domain.Account, error) {
	var found *domain.Account
	err := r.store.view(func(st *memoryState) error {
		a, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		found = r.withType(st, a)
		return nil
	})
	return found, err
}

func (r *memoryAccounts) MarkInitialDeposit(_ context.Context, id int64, depositDate, interestStart time.Time) error {
	return r.store.view(func(st *memoryState) error {
		a, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		if a.InitialDepositDate != nil {
			return nil
		}
		d, i := domain.DateOf(depositDate), domain.DateOf(interestStart)
		a.InitialDepositDate = &d
		a.InterestStartDate = &i
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		return nil
	})
}

func (r *memoryAccounts) ApplyDelta(_ context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.store.view(func(st *memoryState) error {
		a, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		a.Balance = a.Balance.Add(delta)
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		balance = a.Balance
		return nil
	})
	return balance, err
}

type memoryAccountTypes struct {
	store *MemoryStore
}

func (r *memoryAccountTypes) First(context.Context) (*domain.AccountType, error) {
	var found *domain.AccountType
	err := r.store.view(func(st *memoryState) error {
		if len(st.accountTypes) == 0 {
			return errors.ErrNoAccountType
		}
		first := st.accountTypes[0]
		for _, t := range st.accountTypes[1:] {
			if t.ID < first.ID {
				first = t
			}
		}
		found = &first
		return nil
	})
	return found, err
}

func (r *memoryAccountTypes) Get(_ context.Context, id int64) (*domain.AccountType, error) {
	var found *domain.AccountType
	err := r.store.view(func(st *memoryState) error {
		for _, t := range st.accountTypes {
			if t.ID == id {
				found = &t
				return nil
			}
		}
		return errors.ErrNoAccountType
	})
	return found, err
}

type memoryTransactions struct {
	store *MemoryStore
}

func (r *memoryTransactions) Create(_ context.Context, tx *domain.Transaction) error {
	return r.store.view(func(st *memoryState) error {
		if _, ok := st.accounts[tx.AccountID]; !ok {
			return errors.ErrAccountNotFound
		}
		st.transactions = append(st.transactions, *tx)
		return nil
	})
}

func (r *memoryTransactions) ListByOwner(_ context.Context, ownerID int64, dateRange *domain.DateRange) ([]domain.Transaction, error) {
	result := []domain.Transaction{}
	err := r.store.view(func(st *memoryState) error {
		for _, t := range st.transactions {
			a, ok := st.accounts[t.AccountID]
			if !ok || a.OwnerID != ownerID {
				continue
			}
			if dateRange != nil && !dateRange.Contains(t.Timestamp) {
				continue
			}
			result = append(result, t)
		}
		return nil
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, err
}
