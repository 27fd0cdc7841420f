package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/provider"
	"github.com/punchamoorthee/handlepay/internal/settlement"
	"github.com/punchamoorthee/handlepay/internal/store"
)

type memStore struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*domain.Account
	transfers map[uuid.UUID]*domain.Transfer
	createErr error
	creates   int
	setErr    error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  map[uuid.UUID]*domain.Account{},
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
	if m.setErr != nil {
		return "", m.setErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return "", fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	if a.SettlementAddress == "" {
		a.SettlementAddress = addr
	}
	return a.SettlementAddress, nil
}

func (m *memStore) CreateTransfer(_ context.Context, t *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if t.IdempotencyKey != nil {
		for _, other := range m.transfers {
			if other.FromAccountID == t.FromAccountID && other.IdempotencyKey != nil && *other.IdempotencyKey == *t.IdempotencyKey {
				return fmt.Errorf("%w: transactions_idempotency_key", store.ErrDuplicate)
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
	return nil, fmt.Errorf("%w: idempotency key %q", domain.ErrNotFound, key)
}

func (m *memStore) CompleteByCheckoutRef(_ context.Context, ref, txHash string) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.CheckoutRef != nil && *t.CheckoutRef == ref {
			t.Status = domain.StatusCompleted
			t.TxHash = nil
			if txHash != "" {
				h := txHash
				t.TxHash = &h
			}
			t.UpdatedAt = time.Now()
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: checkout reference %q", domain.ErrNotFound, ref)
}

func (m *memStore) ListTransfers(_ context.Context, accountID uuid.UUID, limit int, onChainOnly bool) ([]domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transfer
	for _, t := range m.transfers {
		if t.FromAccountID != accountID && t.ToAccountID != accountID {
			continue
		}
		if onChainOnly && t.TxHash == nil {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRelay struct {
	calls  int
	result settlement.Attempt
}

func (r *fakeRelay) SubmitSponsored(context.Context, settlement.Transfer) settlement.Attempt {
	r.calls++
	return r.result
}

type fakeSession struct {
	active bool
	calls  int
	result settlement.Attempt
}

func (s *fakeSession) Active() bool { return s.active }

func (s *fakeSession) Submit(context.Context, settlement.Transfer) settlement.Attempt {
	s.calls++
	return s.result
}

type fakeProvider struct {
	createCalls int
	address     string
	createErr   error
	sendReq     provider.SendRequest
	txHash      string
	sendErr     error
}

func (p *fakeProvider) CreateWallet(context.Context, string, string, string) (string, error) {
	p.createCalls++
	return p.address, p.createErr
}

func (p *fakeProvider) SendPayment(_ context.Context, req provider.SendRequest) (*provider.Payment, error) {
	p.sendReq = req
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	return &provider.Payment{TxHash: p.txHash}, nil
}
