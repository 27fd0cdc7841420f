// Package provider is a client for the custodial wallet provider's REST API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/punchamoorthee/handlepay/internal/domain"
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error, status code %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrUpstreamUnavailable
}

// Declined reports whether the provider refused the request rather than failed.
func (e *APIError) Declined() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

var ErrMissingAddress = fmt.Errorf("%w: provider returned no wallet address", domain.ErrUpstreamUnavailable)

type Client struct {
	baseURL   string
	secretKey string
	network   string
	http      *http.Client
}

func NewClient(baseURL, secretKey, network string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		network:   network,
		http:      &http.Client{Timeout: timeout},
	}
}

type createWalletRequest struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Label      string `json:"label"`
	Chain      string `json:"chain"`
	Network    string `json:"network"`
}

type walletResponse struct {
	Address         string `json:"address"`
	StarknetAddress string `json:"starknet_address"`
}

// CreateWallet provisions (or returns the existing) custodial wallet for an
// account and returns its settlement address.
func (c *Client) CreateWallet(ctx context.Context, externalID, email, handle string) (string, error) {
	req := createWalletRequest{
		ExternalID: externalID,
		Email:      email,
		Label:      "invisible:" + handle,
		Chain:      "starknet",
		Network:    c.network,
	}

	var resp walletResponse
	if err := c.post(ctx, "/v1/wallets", req, &resp); err != nil {
		return "", err
	}

	addr := resp.Address
	if addr == "" {
		addr = resp.StarknetAddress
	}
	if addr == "" {
		return "", ErrMissingAddress
	}
	return addr, nil
}

type SendRequest struct {
	FromExternalID string `json:"from_external_id"`
	To             string `json:"to"`
	TokenAddress   string `json:"token_address"`
	// Amount is a decimal string; the provider does its own scaling.
	Amount  string `json:"amount"`
	Network string `json:"network"`
}

type Payment struct {
	TxHash string
	Raw    json.RawMessage
}

type sendResponse struct {
	TxHash          string `json:"tx_hash"`
	TransactionHash string `json:"transaction_hash"`
}

// SendPayment asks the provider to sign and submit a token transfer from the
// account's custodial wallet. TxHash may be empty if the provider omitted it.
func (c *Client) SendPayment(ctx context.Context, req SendRequest) (*Payment, error) {
	if req.Network == "" {
		req.Network = c.network
	}

	var raw json.RawMessage
	if err := c.post(ctx, "/v1/payments/starknet/send", req, &raw); err != nil {
		return nil, err
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding send response: %v", domain.ErrUpstreamUnavailable, err)
	}

	hash := resp.TxHash
	if hash == "" {
		hash = resp.TransactionHash
	}
	return &Payment{TxHash: hash, Raw: raw}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// IsDeclined reports whether err is a provider refusal (4xx).
func IsDeclined(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Declined()
}
