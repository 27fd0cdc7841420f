// Package identity maps human-chosen handles to accounts and settlement addresses.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
)

// HandleMarker is the optional prefix users type in front of a handle.
const HandleMarker = "@"

// Directory is the read side of the account store.
type Directory interface {
	FindAccountsByHandle(ctx context.Context, handle string) ([]domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// CleanHandle strips surrounding whitespace and a single leading marker.
func CleanHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), HandleMarker)
}

// Resolve looks up exactly one account by case-sensitive handle equality.
func (r *Resolver) Resolve(ctx context.Context, handle string) (*domain.Account, error) {
	clean := CleanHandle(handle)
	if clean == "" {
		return nil, fmt.Errorf("%w: handle is required", domain.ErrValidation)
	}

	accounts, err := r.dir.FindAccountsByHandle(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("handle lookup failed: %w", err)
	}

	switch len(accounts) {
	case 0:
		return nil, fmt.Errorf("%w: user @%s", domain.ErrNotFound, clean)
	case 1:
		return &accounts[0], nil
	default:
		return nil, fmt.Errorf("%w: handle @%s matches %d accounts", domain.ErrDataIntegrity, clean, len(accounts))
	}
}

// SettlementAddress returns the account's settlement-network address, or
// false when the provider has not provisioned one yet.
func (r *Resolver) SettlementAddress(ctx context.Context, accountID uuid.UUID) (string, bool, error) {
	acc, err := r.dir.GetAccount(ctx, accountID)
	if err != nil {
		return "", false, fmt.Errorf("address lookup failed: %w", err)
	}
	if !acc.Provisioned() {
		return "", false, nil
	}
	return acc.SettlementAddress, true, nil
}
