package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/amount"
	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/identity"
	"github.com/punchamoorthee/handlepay/internal/settlement"
	"github.com/punchamoorthee/handlepay/internal/store"
	"github.com/shopspring/decimal"
)

// PrivateNote marks a transfer the sender asked to hide amounts for.
const PrivateNote = "[private]"

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type SendRequest struct {
	SenderID        uuid.UUID
	SenderEmail     string
	RecipientHandle string
	Amount          string
	Private         bool
	IdempotencyKey  string
	// Session is the sender's wallet session; nil disables on-chain settlement.
	Session settlement.Session
}

type SendResult struct {
	Transfer *domain.Transfer
	// CheckoutURL is set while the transfer is waiting on hosted checkout.
	CheckoutURL string
	Replayed    bool
}

type MoneyRequest struct {
	RequesterID uuid.UUID
	PayerHandle string
	Amount      string
	Note        string
}

type TransferService struct {
	resolver  *identity.Resolver
	router    *settlement.Router
	writer    *Writer
	transfers TransferStore
	checkout  *checkout.Checkout
	decimals  int32
}

func NewTransferService(resolver *identity.Resolver, router *settlement.Router, transfers TransferStore, co *checkout.Checkout, decimals int32) *TransferService {
	return &TransferService{
		resolver:  resolver,
		router:    router,
		writer:    NewWriter(transfers, co.Processor()),
		transfers: transfers,
		checkout:  co,
		decimals:  decimals,
	}
}

// Send moves value to the account behind a handle, settling on-chain when it
// can and deferring to hosted checkout otherwise.
func (s *TransferService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, err
	}
	units, err := amount.NormalizeUint256(amt.String(), s.decimals)
	if err != nil {
		return nil, err
	}
	amt = amt.Truncate(s.decimals)

	recipient, err := s.resolver.Resolve(ctx, req.RecipientHandle)
	if err != nil {
		return nil, err
	}
	if recipient.ID == req.SenderID {
		return nil, fmt.Errorf("%w: cannot send to yourself", domain.ErrValidation)
	}

	var key *string
	if req.IdempotencyKey != "" {
		key = &req.IdempotencyKey
		prior, err := s.replay(ctx, req.SenderID, req.IdempotencyKey, recipient, amt)
		if err != nil || prior != nil {
			return prior, err
		}
	}

	senderAddr, _, err := s.resolver.SettlementAddress(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	out := s.router.Route(ctx, settlement.Request{
		TransferID:       id,
		SenderID:         req.SenderID,
		SenderAddress:    senderAddr,
		RecipientAddress: recipient.SettlementAddress,
		Amount:           amt,
		Units:            units,
		Session:          req.Session,
	})

	var note *string
	if req.Private {
		n := PrivateNote
		note = &n
	}

	t, err := s.writer.Record(ctx, RecordParams{
		ID:             id,
		FromAccountID:  req.SenderID,
		ToAccountID:    recipient.ID,
		Amount:         amt,
		Note:           note,
		IdempotencyKey: key,
	}, out)
	if err != nil {
		if key != nil && errors.Is(err, store.ErrDuplicate) {
			slog.WarnContext(ctx, "concurrent send with same idempotency key",
				"sender_id", req.SenderID, "transfer_id", id, "path", out.Path)
			prior, rerr := s.replay(ctx, req.SenderID, *key, recipient, amt)
			if rerr == nil && prior != nil {
				return prior, nil
			}
		}
		slog.ErrorContext(ctx, "transfer record write failed",
			"transfer_id", id, "path", out.Path, "tx_hash", out.TxRef, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "transfer recorded",
		"transfer_id", t.ID, "status", t.Status, "path", out.Path)

	return &SendResult{Transfer: t, CheckoutURL: s.checkoutURL(t, req.SenderEmail, recipient.Handle)}, nil
}

// replay returns the transfer already created under key, or nil when there
// is none.
func (s *TransferService) replay(ctx context.Context, senderID uuid.UUID, key string, recipient *domain.Account, amt decimal.Decimal) (*SendResult, error) {
	prior, err := s.transfers.FindTransferByIdempotencyKey(ctx, senderID, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lookup: %w", domain.ErrPersistence, err)
	}
	if prior.Kind != domain.KindSend || prior.ToAccountID != recipient.ID || !prior.Amount.Equal(amt) {
		return nil, domain.ErrIdempotencyMismatch
	}
	return &SendResult{
		Transfer:    prior,
		CheckoutURL: s.checkoutURL(prior, "", recipient.Handle),
		Replayed:    true,
	}, nil
}

func (s *TransferService) checkoutURL(t *domain.Transfer, email, recipientHandle string) string {
	if t.Status != domain.StatusPending || t.CheckoutRef == nil {
		return ""
	}
	return s.checkout.URL(checkout.Params{
		Amount:    t.Amount,
		Reference: *t.CheckoutRef,
		Email:     email,
		Metadata:  map[string]string{"to_username": recipientHandle},
	})
}

// Request records that the caller asks the account behind a handle for money.
// The payer is the sender of the resulting transfer.
func (s *TransferService) Request(ctx context.Context, req MoneyRequest) (*domain.Transfer, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, err
	}

	payer, err := s.resolver.Resolve(ctx, req.PayerHandle)
	if err != nil {
		return nil, err
	}
	if payer.ID == req.RequesterID {
		return nil, fmt.Errorf("%w: cannot request money from yourself", domain.ErrValidation)
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}

	t, err := s.writer.RecordRequest(ctx, RecordParams{
		ID:            uuid.New(),
		FromAccountID: payer.ID,
		ToAccountID:   req.RequesterID,
		Amount:        amt.Truncate(s.decimals),
		Note:          note,
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "money request recorded", "transfer_id", t.ID, "payer_id", payer.ID)
	return t, nil
}

// Transfer returns a transfer visible to viewer, who must be one of its parties.
func (s *TransferService) Transfer(ctx context.Context, viewer, id uuid.UUID) (*domain.Transfer, error) {
	t, err := s.transfers.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.FromAccountID != viewer && t.ToAccountID != viewer {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrForbidden, id)
	}
	return t, nil
}

// History returns the account's latest transfers, newest first.
func (s *TransferService) History(ctx context.Context, accountID uuid.UUID, limit int, onChainOnly bool) ([]domain.Transfer, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.transfers.ListTransfers(ctx, accountID, limit, onChainOnly)
}
