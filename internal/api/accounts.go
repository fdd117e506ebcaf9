package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"apotek/m/domain"
	"apotek/m/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
	User      accountView `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.allow(ip, h.now()) {
		h.log.Warn().Str("ip", ip).Msg("login rate limited")
		respondError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	acc, err := h.accounts.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Info().Str("username", req.Username).Str("ip", ip).Msg("login failed")
		h.writeError(w, r, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(acc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info().Int64("account_id", acc.ID).Msg("login succeeded")
	respondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt.Unix(), User: newAccountView(acc)})
}

type cashierRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (h *Handler) listCashiers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListByRole(r.Context(), domain.RoleCashier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]accountView, len(accounts))
	for i, acc := range accounts {
		views[i] = newAccountView(acc)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) createCashier(w http.ResponseWriter, r *http.Request) {
	var req cashierRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == nil || req.Password == nil {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	acc, err := h.accounts.Create(r.Context(), *req.Username, domain.RoleCashier, *req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newAccountView(acc))
}

func (h *Handler) updateCashier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cashierRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == nil && req.Password == nil {
		respondError(w, http.StatusBadRequest, "username or password is required")
		return
	}

	acc, err := h.accounts.Update(r.Context(), id, domain.RoleCashier, store.AccountChanges{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAccountView(acc))
}

func (h *Handler) deleteCashier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), id, domain.RoleCashier); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "cashier deleted"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
