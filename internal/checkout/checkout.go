// Package checkout builds hosted-checkout links for deferred transfers and
// authenticates the processor's completion notifications.
package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader = "X-Signature"
	EventCompleted  = "payment.completed"
)

type Params struct {
	Amount    decimal.Decimal
	Reference string
	Email     string
	Metadata  map[string]string
}

// Checkout is one hosted-checkout processor.
type Checkout struct {
	processor string
	baseURL   string
	publicKey string
	secret    []byte
}

func New(processor, baseURL, publicKey, webhookSecret string) *Checkout {
	return &Checkout{
		processor: processor,
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicKey: publicKey,
		secret:    []byte(webhookSecret),
	}
}

// Processor is the marker stored on transfers deferred to this checkout.
func (c *Checkout) Processor() string {
	return c.processor
}

// URL returns the hosted page the payer is redirected to. The amount is passed
// unrounded so it matches the recorded transfer.
func (c *Checkout) URL(p Params) string {
	q := url.Values{}
	q.Set("pk", c.publicKey)
	q.Set("amount", p.Amount.String())
	q.Set("currency", "USD")
	q.Set("reference", p.Reference)
	if p.Email != "" {
		q.Set("email", p.Email)
	}
	if len(p.Metadata) > 0 {
		if meta, err := json.Marshal(p.Metadata); err == nil {
			q.Set("metadata", string(meta))
		}
	}
	return c.baseURL + "?" + q.Encode()
}

// Sign returns the hex HMAC-SHA256 of body under the webhook secret.
func (c *Checkout) Sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a notification signature. Signatures may carry a "sha256="
// prefix. An unconfigured secret never verifies.
func (c *Checkout) Verify(body []byte, signature string) error {
	if len(c.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", domain.ErrBadSignature)
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return domain.ErrBadSignature
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrBadSignature
	}
	return nil
}

// Event is the processor's notification payload.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ExternalRef string `json:"external_ref"`
	TxHash      string `json:"tx_hash"`
}
