// Package chain talks to the settlement network: read-only JSON-RPC calls
// against a node, and transfer submission through the sender's wallet bridge.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/handlepay/internal/amount"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"golang.org/x/crypto/sha3"
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type Client struct {
	url  string
	http *http.Client
	seq  atomic.Uint64
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: rpc status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: decoding rpc response: %v", domain.ErrUpstreamUnavailable, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	return json.Unmarshal(rr.Result, out)
}

type functionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

type callParams struct {
	Request functionCall `json:"request"`
	BlockID string       `json:"block_id"`
}

// Call invokes a view function on a contract at the latest block.
func (c *Client) Call(ctx context.Context, contract, entrypoint string, calldata ...string) ([]string, error) {
	if calldata == nil {
		calldata = []string{}
	}
	params := callParams{
		Request: functionCall{
			ContractAddress:    contract,
			EntryPointSelector: Selector(entrypoint),
			Calldata:           calldata,
		},
		BlockID: "latest",
	}

	var out []string
	if err := c.call(ctx, "starknet_call", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TokenBalance returns the raw token balance of owner. Token contracts differ
// on the entrypoint name, so balance_of is tried before balanceOf.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	out, err := c.Call(ctx, token, "balance_of", owner)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			return nil, err
		}
		out, err = c.Call(ctx, token, "balanceOf", owner)
		if err != nil {
			return nil, err
		}
	}
	return decodeUint256(out)
}

func decodeUint256(felts []string) (*big.Int, error) {
	switch len(felts) {
	case 1:
		return parseFelt(felts[0])
	case 2:
		low, err := parseFelt(felts[0])
		if err != nil {
			return nil, err
		}
		high, err := parseFelt(felts[1])
		if err != nil {
			return nil, err
		}
		return amount.Join(low, high), nil
	default:
		return nil, fmt.Errorf("%w: unexpected balance result of %d felts", domain.ErrUpstreamUnavailable, len(felts))
	}
}

func parseFelt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(s), "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("%w: malformed felt %q", domain.ErrUpstreamUnavailable, s)
	}
	return v, nil
}

var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector computes the entry point selector for a function name: keccak256
// truncated to 250 bits.
func Selector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(big.Int).SetBytes(h.Sum(nil))
	return "0x" + v.And(v, mask250).Text(16)
}
