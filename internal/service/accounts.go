package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
)

const (
	DefaultAccountLimit = 20
	MaxAccountLimit     = 100
)

// AccountLister lists profiles ordered by handle.
type AccountLister interface {
	ListAccounts(ctx context.Context, exclude uuid.UUID, limit int) ([]domain.Account, error)
}

// AccountService lists the accounts a user can pick as counterparties.
type AccountService struct {
	accounts AccountLister
}

func NewAccountService(accounts AccountLister) *AccountService {
	return &AccountService{accounts: accounts}
}

// Others returns up to limit accounts other than viewer.
func (s *AccountService) Others(ctx context.Context, viewer uuid.UUID, limit int) ([]domain.Account, error) {
	switch {
	case limit <= 0:
		limit = DefaultAccountLimit
	case limit > MaxAccountLimit:
		limit = MaxAccountLimit
	}
	accounts, err := s.accounts.ListAccounts(ctx, viewer, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing accounts: %w", domain.ErrPersistence, err)
	}
	return accounts, nil
}
