package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"apotek/m/internal/store"
)

// writeError maps store and domain errors to a status and a client-safe
// message. Anything unrecognized is logged and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *store.ValidationError
		missing    *store.ItemNotFoundError
		short      *store.InsufficientStockError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &short):
		respondError(w, http.StatusBadRequest, short.Error())
	case errors.Is(err, store.ErrInvalidCart):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missing):
		respondError(w, http.StatusNotFound, missing.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateUsername),
		errors.Is(err, store.ErrMedicineInUse),
		errors.Is(err, store.ErrAccountInUse):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		h.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
