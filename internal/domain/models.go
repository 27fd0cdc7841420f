package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a registered user as stored in the profiles table.
// SettlementAddress is empty until the wallet provider has provisioned one.
type Account struct {
	ID                uuid.UUID `json:"id"`
	Handle            string    `json:"username"`
	Email             string    `json:"email,omitempty"`
	SettlementAddress string    `json:"starknet_address,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Provisioned reports whether the account has a settlement-network address.
func (a *Account) Provisioned() bool {
	return a != nil && a.SettlementAddress != ""
}

type Kind string

const (
	KindSend    Kind = "send"
	KindRequest Kind = "request"
	// KindReceive is never stored. It is how a send looks from the recipient's side.
	KindReceive Kind = "receive"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Transfer is one attempted movement of value between two accounts.
type Transfer struct {
	ID             uuid.UUID       `json:"id"`
	FromAccountID  uuid.UUID       `json:"from_user_id"`
	ToAccountID    uuid.UUID       `json:"to_user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           Kind            `json:"transaction_type"`
	Status         Status          `json:"status"`
	TxHash         *string         `json:"tx_hash,omitempty"`
	Processor      *string         `json:"processor,omitempty"`
	CheckoutRef    *string         `json:"external_ref,omitempty"`
	Note           *string         `json:"note,omitempty"`
	IdempotencyKey *string         `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Handles of both parties, filled in when the transfer is read back.
	FromHandle string `json:"from_username,omitempty"`
	ToHandle   string `json:"to_username,omitempty"`
}

// Validate checks the status rules a freshly written transfer must hold.
func (t *Transfer) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if t.FromAccountID == t.ToAccountID {
		return fmt.Errorf("%w: sender and recipient are the same account", ErrValidation)
	}
	if t.TxHash != nil && t.Status != StatusCompleted {
		return fmt.Errorf("%w: transfer with tx hash must be completed", ErrDataIntegrity)
	}
	if t.Kind == KindSend && t.Status == StatusPending {
		if t.Processor == nil || t.TxHash != nil {
			return fmt.Errorf("%w: pending send must be deferred to a processor", ErrDataIntegrity)
		}
	}
	if t.Processor != nil && t.TxHash != nil {
		return fmt.Errorf("%w: processor marker and tx hash are exclusive at creation", ErrDataIntegrity)
	}
	return nil
}

// ViewFor returns the kind as seen by accountID: a send addressed to the
// account is shown as a receive.
func (t *Transfer) ViewFor(accountID uuid.UUID) Kind {
	if t.Kind == KindSend && t.ToAccountID == accountID && t.FromAccountID != accountID {
		return KindReceive
	}
	return t.Kind
}

// CheckoutReference derives the hosted-checkout reference for a transfer id.
func CheckoutReference(id uuid.UUID) string {
	return "tx_" + id.String()
}

// Balance is the reconciled display balance of an account.
// OnChain is nil when the settlement network could not be queried.
type Balance struct {
	AccountID uuid.UUID        `json:"account_id"`
	OffChain  decimal.Decimal  `json:"app_balance"`
	OnChain   *decimal.Decimal `json:"onchain_balance,omitempty"`
	Total     decimal.Decimal  `json:"total"`
	Token     string           `json:"token,omitempty"`
}
