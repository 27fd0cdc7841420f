package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateWalletRequest is the relay body for wallet provisioning.
type CreateWalletRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type WalletResponse struct {
	OK      bool   `json:"ok"`
	Address string `json:"address"`
}

// RelaySendRequest is the relay body for a provider-sponsored transfer.
type RelaySendRequest struct {
	FromExternalID string `json:"fromExternalId"`
	ToAddress      string `json:"toAddress"`
	TokenAddress   string `json:"tokenAddress"`
	AmountDecimals string `json:"amountDecimals"`
}

type RelaySendResponse struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"tx_hash"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// TransferRequest sends money to a handle. Amount is a decimal string.
type TransferRequest struct {
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Private bool   `json:"private"`
}

// MoneyRequestRequest asks the account behind From for money.
type MoneyRequestRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

// Transfer is a transfer as seen by one of its parties.
type Transfer struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID uuid.UUID       `json:"from_user_id"`
	ToAccountID   uuid.UUID       `json:"to_user_id"`
	FromUsername  string          `json:"from_username"`
	ToUsername    string          `json:"to_username"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          domain.Kind     `json:"transaction_type"`
	Status        domain.Status   `json:"status"`
	TxHash        *string         `json:"tx_hash,omitempty"`
	Processor     *string         `json:"processor,omitempty"`
	ExternalRef   *string         `json:"external_ref,omitempty"`
	Note          *string         `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewTransfer renders t from viewer's side, so incoming sends read as receives.
func NewTransfer(t *domain.Transfer, viewer uuid.UUID) Transfer {
	return Transfer{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		FromUsername:  t.FromHandle,
		ToUsername:    t.ToHandle,
		Amount:        t.Amount,
		Kind:          t.ViewFor(viewer),
		Status:        t.Status,
		TxHash:        t.TxHash,
		Processor:     t.Processor,
		ExternalRef:   t.CheckoutRef,
		Note:          t.Note,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// TransferResponse is the canonical response structure.
type TransferResponse struct {
	Transfer    Transfer `json:"transfer"`
	CheckoutURL string   `json:"checkout_url,omitempty"`
}

type TransferList struct {
	Transfers []Transfer `json:"transfers"`
}

// Profile is the public view of an account.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Provisioned bool      `json:"provisioned"`
}

func NewProfile(a *domain.Account) Profile {
	return Profile{ID: a.ID, Username: a.Handle, Provisioned: a.Provisioned()}
}

type ProfileList struct {
	Accounts []Profile `json:"accounts"`
}
