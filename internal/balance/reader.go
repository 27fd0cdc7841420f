// Package balance reconciles an account's app balance with its on-chain token
// balance for display.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/amount"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Ledger interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetWalletBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

type Chain interface {
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
}

type Reader struct {
	ledger   Ledger
	chain    Chain
	token    string
	decimals int32
}

// NewReader returns a Reader. A nil chain or empty token disables the
// on-chain half.
func NewReader(ledger Ledger, chain Chain, token string, decimals int32) *Reader {
	return &Reader{ledger: ledger, chain: chain, token: token, decimals: decimals}
}

// Balance reads both halves concurrently. Only the app balance is required;
// an unreachable network leaves OnChain nil.
func (r *Reader) Balance(ctx context.Context, accountID uuid.UUID) (*domain.Balance, error) {
	var (
		offChain decimal.Decimal
		onChain  *decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := r.ledger.GetWalletBalance(gctx, accountID)
		if err != nil {
			return fmt.Errorf("%w: reading app balance: %w", domain.ErrPersistence, err)
		}
		offChain = v
		return nil
	})
	g.Go(func() error {
		onChain = r.onChain(gctx, accountID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &domain.Balance{
		AccountID: accountID,
		OffChain:  offChain,
		OnChain:   onChain,
		Total:     offChain,
		Token:     r.token,
	}
	if onChain != nil {
		b.Total = offChain.Add(*onChain)
	}
	return b, nil
}

func (r *Reader) onChain(ctx context.Context, accountID uuid.UUID) *decimal.Decimal {
	if r.chain == nil || r.token == "" {
		return nil
	}
	acc, err := r.ledger.GetAccount(ctx, accountID)
	if err != nil {
		slog.WarnContext(ctx, "account lookup for on-chain balance failed", "user_id", accountID, "error", err)
		return nil
	}
	if !acc.Provisioned() {
		return nil
	}

	raw, err := r.chain.TokenBalance(ctx, r.token, acc.SettlementAddress)
	if err != nil {
		slog.WarnContext(ctx, "on-chain balance unavailable", "user_id", accountID, "error", err)
		return nil
	}
	v := amount.Format(raw, r.decimals)
	return &v
}
