package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/checkout"
)

type checkoutResponse struct {
	Order        orderView `json:"order"`
	ClientSecret string    `json:"clientSecret"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.checkout.PlaceOrder(r.Context(), ownerFrom(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		Order:        orderToView(res.Order),
		ClientSecret: res.ClientSecret,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToView(o))
}
