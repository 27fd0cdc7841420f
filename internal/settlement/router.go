// Package settlement decides how a send is settled: a sponsored on-chain
// transfer through the provider relay, a direct transfer through the sender's
// wallet session, or a deferral to hosted checkout.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/handlepay/internal/amount"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	routeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlepay_settlement_route_total",
		Help: "Settlement outcomes by the path that produced them",
	}, []string{"path"})

	attemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlepay_settlement_attempt_total",
		Help: "Settlement attempts by path and result",
	}, []string{"path", "result"})
)

type Path string

const (
	PathSponsored Path = "sponsored"
	PathWallet    Path = "wallet"
	PathCheckout  Path = "checkout"
)

// Transfer is the on-chain transfer a capability is asked to submit.
type Transfer struct {
	SenderID         uuid.UUID
	SenderAddress    string
	RecipientAddress string
	Token            string
	Amount           decimal.Decimal
	Units            amount.Uint256
}

// Relay submits a transfer on the sender's behalf so the sender pays no fees.
type Relay interface {
	SubmitSponsored(ctx context.Context, t Transfer) Attempt
}

// Session is the sender's connected wallet.
type Session interface {
	Active() bool
	Submit(ctx context.Context, t Transfer) Attempt
}

type Request struct {
	TransferID       uuid.UUID
	SenderID         uuid.UUID
	SenderAddress    string
	RecipientAddress string
	Amount           decimal.Decimal
	Units            amount.Uint256
	// Session may be nil when the caller has no wallet connected.
	Session Session
}

// Outcome is either on-chain (TxRef set) or deferred (CheckoutRef set).
type Outcome struct {
	Path        Path
	TxRef       string
	CheckoutRef string
}

func (o Outcome) OnChain() bool {
	return o.TxRef != ""
}

type Router struct {
	relay Relay
	token string
}

func NewRouter(relay Relay, tokenAddress string) *Router {
	return &Router{relay: relay, token: tokenAddress}
}

// Eligible reports whether on-chain settlement may be attempted at all.
func Eligible(req Request) bool {
	return req.Session != nil && req.Session.Active() &&
		req.SenderAddress != "" && req.RecipientAddress != ""
}

// Route walks the fallback chain once, in order, and never fails: the worst
// case is a deferral to hosted checkout.
func (r *Router) Route(ctx context.Context, req Request) Outcome {
	if !Eligible(req) {
		slog.InfoContext(ctx, "on-chain settlement not eligible, deferring to checkout",
			"transfer_id", req.TransferID,
			"session_active", req.Session != nil && req.Session.Active(),
			"sender_provisioned", req.SenderAddress != "",
			"recipient_provisioned", req.RecipientAddress != "",
		)
		return r.deferToCheckout(req)
	}

	t := Transfer{
		SenderID:         req.SenderID,
		SenderAddress:    req.SenderAddress,
		RecipientAddress: req.RecipientAddress,
		Token:            r.token,
		Amount:           req.Amount,
		Units:            req.Units,
	}

	if r.relay != nil {
		a := r.attempt(ctx, PathSponsored, req.TransferID, func(ctx context.Context) Attempt {
			return r.relay.SubmitSponsored(ctx, t)
		})
		if a.Settled() {
			return r.settled(PathSponsored, a.TxRef)
		}
	}

	a := r.attempt(ctx, PathWallet, req.TransferID, func(ctx context.Context) Attempt {
		return req.Session.Submit(ctx, t)
	})
	if a.Settled() {
		return r.settled(PathWallet, a.TxRef)
	}

	return r.deferToCheckout(req)
}

// attempt runs one path and converts a panic into Unavailable so that a
// misbehaving capability cannot break the chain.
func (r *Router) attempt(ctx context.Context, path Path, transferID uuid.UUID, fn func(context.Context) Attempt) (a Attempt) {
	defer func() {
		if p := recover(); p != nil {
			a = Unavailable(fmt.Errorf("%w: %s path panicked: %v", domain.ErrUpstreamUnavailable, path, p))
		}

		result := a.Kind.String()
		if a.Kind == AttemptOK && a.TxRef == "" {
			result = "missing_ref"
		}
		attemptTotal.WithLabelValues(string(path), result).Inc()

		if a.Settled() {
			slog.InfoContext(ctx, "settlement path succeeded", "path", path, "transfer_id", transferID, "tx_hash", a.TxRef)
			return
		}
		slog.WarnContext(ctx, "settlement path failed, falling through",
			"path", path, "transfer_id", transferID, "result", result, "error", a.Err)
	}()
	return fn(ctx)
}

func (r *Router) settled(path Path, txRef string) Outcome {
	routeTotal.WithLabelValues(string(path)).Inc()
	return Outcome{Path: path, TxRef: txRef}
}

func (r *Router) deferToCheckout(req Request) Outcome {
	routeTotal.WithLabelValues(string(PathCheckout)).Inc()
	return Outcome{Path: PathCheckout, CheckoutRef: domain.CheckoutReference(req.TransferID)}
}
