package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/punchamoorthee/handlepay/internal/amount"
	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/models"
	"github.com/punchamoorthee/handlepay/internal/provider"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.OKResponse{OK: true})
}

// CreateOrFetchWalletHandler provisions the caller's own wallet.
func (h *Handler) CreateOrFetchWalletHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.CreateWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Email == "" || req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "userId, email and username are required")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "userId must be a UUID")
		return
	}
	if userID != c.ID {
		respondWithError(w, http.StatusForbidden, "userId does not match the authenticated user")
		return
	}

	addr, err := h.wallets.CreateOrFetch(r.Context(), userID, req.Email, req.Username)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.WalletResponse{OK: true, Address: addr})
}

// RelaySendHandler submits a sponsored transfer out of the caller's own
// custodial wallet.
func (h *Handler) RelaySendHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.RelaySendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FromExternalID == "" || req.ToAddress == "" || req.TokenAddress == "" || req.AmountDecimals == "" {
		respondWithError(w, http.StatusBadRequest, "fromExternalId, toAddress, tokenAddress and amountDecimals are required")
		return
	}
	if req.FromExternalID != c.ID.String() {
		respondWithError(w, http.StatusForbidden, "fromExternalId does not match the authenticated user")
		return
	}
	amt, err := amount.ParsePositive(req.AmountDecimals)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	hash, err := h.wallets.SendSponsored(r.Context(), provider.SendRequest{
		FromExternalID: req.FromExternalID,
		To:             req.ToAddress,
		TokenAddress:   req.TokenAddress,
		Amount:         amt.String(),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.RelaySendResponse{OK: true, TxHash: hash})
}

// WebhookHandler accepts completion notifications from the hosted-checkout
// processor. The raw body must carry a valid HMAC signature.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["processor"] != h.checkout.Processor() {
		respondWithError(w, http.StatusNotFound, "Unknown processor")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Body too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Stream read error")
		return
	}

	if err := h.checkout.Verify(body, r.Header.Get(checkout.SignatureHeader)); err != nil {
		slog.WarnContext(r.Context(), "rejected webhook with bad signature", "processor", h.checkout.Processor())
		respondWithServiceError(w, r, err)
		return
	}

	var ev checkout.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.completer.Apply(r.Context(), ev); err != nil {
		slog.ErrorContext(r.Context(), "webhook processing failed", "type", ev.Type, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, models.OKResponse{OK: true})
}
