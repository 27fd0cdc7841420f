package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/handlepay/internal/balance"
	"github.com/punchamoorthee/handlepay/internal/chain"
	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/punchamoorthee/handlepay/internal/identity"
	"github.com/punchamoorthee/handlepay/internal/models"
	"github.com/punchamoorthee/handlepay/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlepay_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handlepay_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	WalletSessionHeader  = "X-Wallet-Session"

	maxBodyBytes = 1 << 20
)

type Deps struct {
	Transfers *service.TransferService
	Wallets   *service.WalletService
	Completer *service.Completer
	Balances  *balance.Reader
	Resolver  *identity.Resolver
	Accounts  *service.AccountService
	Checkout  *checkout.Checkout
	// Bridge may be nil, in which case no wallet session is ever active.
	Bridge *chain.Bridge
	Auth   *Authenticator
}

type Handler struct {
	transfers *service.TransferService
	wallets   *service.WalletService
	completer *service.Completer
	balances  *balance.Reader
	resolver  *identity.Resolver
	accounts  *service.AccountService
	checkout  *checkout.Checkout
	bridge    *chain.Bridge
	auth      *Authenticator
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		transfers: d.Transfers,
		wallets:   d.Wallets,
		completer: d.Completer,
		balances:  d.Balances,
		resolver:  d.Resolver,
		accounts:  d.Accounts,
		checkout:  d.Checkout,
		bridge:    d.Bridge,
		auth:      d.Auth,
	}
}

// Routes builds the router. The relay routes are mounted both at the root and
// under /api. Health and the signed webhook are open; the relay routes that
// provision wallets or move funds require a bearer token.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.auth.Middleware)
	v1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers/{id}", h.GetTransferHandler).Methods(http.MethodGet)
	v1.HandleFunc("/requests", h.CreateRequestHandler).Methods(http.MethodPost)
	v1.HandleFunc("/me/transfers", h.ListTransfersHandler).Methods(http.MethodGet)
	v1.HandleFunc("/me/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/handles/{handle}", h.GetHandleHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)

	h.relayRoutes(r.PathPrefix("/api").Subrouter())
	h.relayRoutes(r)

	return r
}

func (h *Handler) relayRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.Handle("/wallets/create-or-fetch", h.auth.Middleware(http.HandlerFunc(h.CreateOrFetchWalletHandler))).Methods(http.MethodPost)
	r.Handle("/payments/send", h.auth.Middleware(http.HandlerFunc(h.RelaySendHandler))).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{processor}", h.WebhookHandler).Methods(http.MethodPost)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

// respondWithServiceError maps domain failures onto HTTP statuses.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDataIntegrity):
		slog.ErrorContext(r.Context(), "data integrity violation", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	case errors.Is(err, domain.ErrPersistence):
		slog.ErrorContext(r.Context(), "persistence failure", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrBadSignature):
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		slog.WarnContext(r.Context(), "upstream unavailable", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusBadGateway, "Upstream service unavailable")
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{OK: false, Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
