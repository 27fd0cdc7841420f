package api_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/store"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*domain.Account
	balances  map[uuid.UUID]decimal.Decimal
	transfers map[uuid.UUID]*domain.Transfer
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  map[uuid.UUID]*domain.Account{},
		balances:  map[uuid.UUID]decimal.Decimal{},
		transfers: map[uuid.UUID]*domain.Transfer{},
	}
}

func (m *memStore) addAccount(handle, addr string) *domain.Account {
	a := &domain.Account{ID: uuid.New(), Handle: handle, Email: handle + "@example.com", SettlementAddress: addr}
	m.accounts[a.ID] = a
	return a
}

func (m *memStore) FindAccountsByHandle(_ context.Context, handle string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, a := range m.accounts {
		if a.Handle == handle {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAccounts(_ context.Context, exclude uuid.UUID, limit int) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, a := range m.accounts {
		if a.ID != exclude {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SetSettlementAddress(_ context.Context, id uuid.UUID, addr string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return "", fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	if a.SettlementAddress == "" {
		a.SettlementAddress = addr
	}
	return a.SettlementAddress, nil
}

func (m *memStore) GetWalletBalance(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id], nil
}

func (m *memStore) CreateTransfer(_ context.Context, t *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.IdempotencyKey != nil {
		for _, other := range m.transfers {
			if other.FromAccountID == t.FromAccountID && other.IdempotencyKey != nil && *other.IdempotencyKey == *t.IdempotencyKey {
				return store.ErrDuplicate
			}
		}
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.FromHandle, t.ToHandle = m.handle(t.FromAccountID), m.handle(t.ToAccountID)
	cp := *t
	m.transfers[t.ID] = &cp
	return nil
}

// handle stands in for the profile join; callers hold m.mu.
func (m *memStore) handle(id uuid.UUID) string {
	if a, ok := m.accounts[id]; ok {
		return a.Handle
	}
	return ""
}

func (m *memStore) GetTransfer(_ context.Context, id uuid.UUID) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) FindTransferByIdempotencyKey(_ context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.FromAccountID == senderID && t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) CompleteByCheckoutRef(_ context.Context, ref, txHash string) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.CheckoutRef != nil && *t.CheckoutRef == ref {
			t.Status = domain.StatusCompleted
			h := txHash
			t.TxHash = &h
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) ListTransfers(_ context.Context, accountID uuid.UUID, limit int, onChainOnly bool) ([]domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transfer
	for _, t := range m.transfers {
		if (t.FromAccountID == accountID || t.ToAccountID == accountID) && (!onChainOnly || t.TxHash != nil) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
