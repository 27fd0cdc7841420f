package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/settlement"
)

// Bridge relays calls to the browser wallet the user connected. Signing
// happens in the wallet; the bridge only forwards calls and returns hashes.
type Bridge struct {
	url  string
	http *http.Client
}

func NewBridge(url string, timeout time.Duration) *Bridge {
	return &Bridge{url: strings.TrimRight(url, "/"), http: &http.Client{Timeout: timeout}}
}

// Session binds the bridge to one connected wallet. A nil bridge or an empty
// token yields an inactive session.
func (b *Bridge) Session(token string) *Session {
	return &Session{bridge: b, token: token}
}

type Session struct {
	bridge *Bridge
	token  string
}

func (s *Session) Active() bool {
	return s != nil && s.bridge != nil && s.bridge.url != "" && s.token != ""
}

type walletCall struct {
	ContractAddress string   `json:"contract_address"`
	Entrypoint      string   `json:"entrypoint"`
	Calldata        []string `json:"calldata"`
}

type executeRequest struct {
	Calls []walletCall `json:"calls"`
}

type executeResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// Submit executes transfer(recipient, low, high) on the token contract.
func (s *Session) Submit(ctx context.Context, t settlement.Transfer) settlement.Attempt {
	if !s.Active() {
		return settlement.Unavailable(fmt.Errorf("%w: wallet not connected", domain.ErrUpstreamUnavailable))
	}
	if t.Units.Low == nil || t.Units.High == nil {
		return settlement.Declined(fmt.Errorf("%w: transfer amount not normalized", domain.ErrValidation))
	}

	body, err := json.Marshal(executeRequest{Calls: []walletCall{{
		ContractAddress: t.Token,
		Entrypoint:      "transfer",
		Calldata:        append([]string{t.RecipientAddress}, t.Units.Calldata()...),
	}}})
	if err != nil {
		return settlement.Declined(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.bridge.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return settlement.Unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.bridge.http.Do(req)
	if err != nil {
		return settlement.Unavailable(fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: wallet bridge status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode < 500 {
			return settlement.Declined(err)
		}
		return settlement.Unavailable(err)
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return settlement.Unavailable(fmt.Errorf("%w: decoding wallet response: %v", domain.ErrUpstreamUnavailable, err))
	}
	return settlement.OK(out.TransactionHash)
}
