package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/handlepay/internal/models"
)

func (h *Handler) GetHandleHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := h.resolver.Resolve(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewProfile(acc))
}

// ListAccountsHandler lists other users the caller can pay or request from.
func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	accounts, err := h.accounts.Others(r.Context(), c.ID, limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	out := models.ProfileList{Accounts: make([]models.Profile, 0, len(accounts))}
	for i := range accounts {
		out.Accounts = append(out.Accounts, models.NewProfile(&accounts[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}
