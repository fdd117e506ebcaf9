package api

import (
	"context"
	"net/http"
	"time"

	"apotek/m/domain"
)

const publishTimeout = 5 * time.Second

type saleItemRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity int64 `json:"quantity"`
}

type saleRequest struct {
	Items []saleItemRequest `json:"items"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale payload")
		return
	}
	cart := make([]domain.CartItem, len(req.Items))
	for i, item := range req.Items {
		cart[i] = domain.CartItem{MedicineID: item.ItemID, Quantity: item.Quantity}
	}

	sale, err := h.sales.Record(r.Context(), identity.AccountID, cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info().Int64("sale_id", sale.ID).Int64("account_id", sale.UserID).Str("total", sale.Total.StringFixed(2)).Msg("sale recorded")

	// The sale is committed; a publishing failure must not fail the request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	defer cancel()
	if err := h.events.PublishSaleRecorded(ctx, sale); err != nil {
		h.log.Error().Err(err).Int64("sale_id", sale.ID).Msg("unable to publish sale event")
	}

	respondJSON(w, http.StatusCreated, newSaleView(sale))
}

// listTodaySales returns the caller's sales since local midnight, newest first.
func (h *Handler) listTodaySales(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	now := h.now().In(h.cfg.Location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.cfg.Location)
	to := from.AddDate(0, 0, 1)

	sales, err := h.sales.ListForAccount(r.Context(), identity.AccountID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]saleView, len(sales))
	for i, s := range sales {
		views[i] = newSaleView(s)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	identity, _ := identityFrom(r.Context())

	sale, err := h.sales.GetForAccount(r.Context(), identity.AccountID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSaleView(sale))
}

func (h *Handler) weeklyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Weekly(r.Context(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newWeeklyReportView(report))
}
