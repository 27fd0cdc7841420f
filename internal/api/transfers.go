package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/punchamoorthee/handlepay/internal/models"
	"github.com/punchamoorthee/handlepay/internal/service"
)

func caller(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization header required")
	}
	return c, ok
}

// limitParam parses the optional limit query parameter; zero means unset.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return v, true
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.transfers.Send(r.Context(), service.SendRequest{
		SenderID:        c.ID,
		SenderEmail:     c.Email,
		RecipientHandle: req.To,
		Amount:          req.Amount,
		Private:         req.Private,
		IdempotencyKey:  r.Header.Get(IdempotencyKeyHeader),
		Session:         h.bridge.Session(r.Header.Get(WalletSessionHeader)),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/transfers/"+res.Transfer.ID.String())
	respondWithJSON(w, code, models.TransferResponse{
		Transfer:    models.NewTransfer(res.Transfer, c.ID),
		CheckoutURL: res.CheckoutURL,
	})
}

func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.MoneyRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.transfers.Request(r.Context(), service.MoneyRequest{
		RequesterID: c.ID,
		PayerHandle: req.From,
		Amount:      req.Amount,
		Note:        req.Note,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transfers/"+t.ID.String())
	respondWithJSON(w, http.StatusCreated, models.TransferResponse{Transfer: models.NewTransfer(t, c.ID)})
}

func (h *Handler) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	t, err := h.transfers.Transfer(r.Context(), c.ID, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.TransferResponse{Transfer: models.NewTransfer(t, c.ID)})
}

func (h *Handler) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	onChain := false
	if raw := q.Get("onchain"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "onchain must be a boolean")
			return
		}
		onChain = v
	}

	transfers, err := h.transfers.History(r.Context(), c.ID, limit, onChain)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	out := models.TransferList{Transfers: make([]models.Transfer, 0, len(transfers))}
	for i := range transfers {
		out.Transfers = append(out.Transfers, models.NewTransfer(&transfers[i], c.ID))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	b, err := h.balances.Balance(r.Context(), c.ID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}
