package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = h.productToView(p)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.productToView(*p))
}

func (h *Handler) listShippingOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.shippingOpts.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]shippingOptionView, len(options))
	for i, o := range options {
		views[i] = shippingOptionToView(o)
	}
	respondJSON(w, http.StatusOK, views)
}
