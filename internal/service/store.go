package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/identity"
)

// AccountStore is the account side of the database.
type AccountStore interface {
	identity.Directory
	SetSettlementAddress(ctx context.Context, id uuid.UUID, addr string) (string, error)
}

// TransferStore is the transfer side of the database.
type TransferStore interface {
	CreateTransfer(ctx context.Context, t *domain.Transfer) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	FindTransferByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error)
	CompleteByCheckoutRef(ctx context.Context, ref, txHash string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, accountID uuid.UUID, limit int, onChainOnly bool) ([]domain.Transfer, error)
}
