package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/provider"
)

// WalletProvider is the custodial wallet provider.
type WalletProvider interface {
	CreateWallet(ctx context.Context, externalID, email, handle string) (string, error)
	SendPayment(ctx context.Context, req provider.SendRequest) (*provider.Payment, error)
}

// WalletService backs the relay endpoints the web client calls directly.
type WalletService struct {
	accounts AccountStore
	provider WalletProvider
	// simulate replaces provider failures with placeholder values.
	simulate bool
}

func NewWalletService(accounts AccountStore, p WalletProvider, simulate bool) *WalletService {
	return &WalletService{accounts: accounts, provider: p, simulate: simulate}
}

// CreateOrFetch returns the account's settlement address, provisioning one
// with the provider on first use.
func (s *WalletService) CreateOrFetch(ctx context.Context, accountID uuid.UUID, email, handle string) (string, error) {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	switch {
	case err == nil && acc.Provisioned():
		return acc.SettlementAddress, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		slog.WarnContext(ctx, "account lookup failed before provisioning", "user_id", accountID, "error", err)
	}

	addr, err := s.provider.CreateWallet(ctx, accountID.String(), email, handle)
	if err != nil {
		if !s.simulate {
			return "", err
		}
		addr = simulatedHex(20)
		slog.WarnContext(ctx, "provider unavailable, using simulated wallet address",
			"user_id", accountID, "address", addr, "error", err)
	}

	stored, err := s.accounts.SetSettlementAddress(ctx, accountID, addr)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store settlement address", "user_id", accountID, "error", err)
		return addr, nil
	}
	if stored != addr {
		slog.InfoContext(ctx, "account already provisioned, keeping existing address", "user_id", accountID)
	}
	return stored, nil
}

// SendSponsored submits a provider-sponsored token transfer and returns its
// tx hash.
func (s *WalletService) SendSponsored(ctx context.Context, req provider.SendRequest) (string, error) {
	p, err := s.provider.SendPayment(ctx, req)
	if err == nil && p.TxHash == "" {
		err = fmt.Errorf("%w: provider accepted the payment without a tx hash", domain.ErrUpstreamUnavailable)
	}
	if err != nil {
		if !s.simulate {
			return "", err
		}
		hash := simulatedHex(32)
		slog.WarnContext(ctx, "provider unavailable, returning simulated tx hash",
			"from", req.FromExternalID, "tx_hash", hash, "error", err)
		return hash, nil
	}
	return p.TxHash, nil
}

func simulatedHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}
