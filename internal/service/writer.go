package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/settlement"
	"github.com/shopspring/decimal"
)

type RecordParams struct {
	ID             uuid.UUID
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	Amount         decimal.Decimal
	Kind           domain.Kind
	Note           *string
	IdempotencyKey *string
}

// Writer persists exactly one transfer row per call and never retries.
type Writer struct {
	transfers TransferStore
	processor string
}

func NewWriter(transfers TransferStore, processor string) *Writer {
	return &Writer{transfers: transfers, processor: processor}
}

// Record writes a send with the status implied by its settlement outcome.
func (w *Writer) Record(ctx context.Context, p RecordParams, out settlement.Outcome) (*domain.Transfer, error) {
	t := newTransfer(p)
	t.Kind = domain.KindSend
	if out.OnChain() {
		t.Status = domain.StatusCompleted
		t.TxHash = &out.TxRef
	} else {
		t.Status = domain.StatusPending
		processor := w.processor
		ref := out.CheckoutRef
		t.Processor = &processor
		t.CheckoutRef = &ref
	}
	return w.write(ctx, t)
}

// RecordRequest writes a pending money request. Requests are never routed,
// so they carry neither a processor nor a tx hash.
func (w *Writer) RecordRequest(ctx context.Context, p RecordParams) (*domain.Transfer, error) {
	t := newTransfer(p)
	t.Kind = domain.KindRequest
	t.Status = domain.StatusPending
	return w.write(ctx, t)
}

func newTransfer(p RecordParams) *domain.Transfer {
	return &domain.Transfer{
		ID:             p.ID,
		FromAccountID:  p.FromAccountID,
		ToAccountID:    p.ToAccountID,
		Amount:         p.Amount,
		Note:           p.Note,
		IdempotencyKey: p.IdempotencyKey,
	}
}

func (w *Writer) write(ctx context.Context, t *domain.Transfer) (*domain.Transfer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := w.transfers.CreateTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: transfer %s: %w", domain.ErrPersistence, t.ID, err)
	}
	return t, nil
}
