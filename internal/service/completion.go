package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/domain"
)

// Completer applies hosted-checkout completion events to deferred transfers.
type Completer struct {
	transfers TransferStore
}

func NewCompleter(transfers TransferStore) *Completer {
	return &Completer{transfers: transfers}
}

// Apply marks the referenced transfer completed. Replaying an event writes
// the same values again; unknown event types and references are acknowledged.
func (c *Completer) Apply(ctx context.Context, ev checkout.Event) error {
	if ev.Type != checkout.EventCompleted {
		slog.DebugContext(ctx, "ignoring checkout event", "type", ev.Type)
		return nil
	}
	if ev.Data.ExternalRef == "" {
		slog.WarnContext(ctx, "checkout completion without reference")
		return nil
	}

	t, err := c.transfers.CompleteByCheckoutRef(ctx, ev.Data.ExternalRef, ev.Data.TxHash)
	if errors.Is(err, domain.ErrNotFound) {
		slog.WarnContext(ctx, "checkout completion for unknown reference", "external_ref", ev.Data.ExternalRef)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: completing %s: %w", domain.ErrPersistence, ev.Data.ExternalRef, err)
	}

	slog.InfoContext(ctx, "deferred transfer completed",
		"transfer_id", t.ID, "external_ref", ev.Data.ExternalRef, "tx_hash", ev.Data.TxHash)
	return nil
}
