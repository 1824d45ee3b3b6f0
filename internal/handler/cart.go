package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	// Pointer so an absent quantity is distinguishable from an explicit 0.
	Quantity *int `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Quantity == nil || *req.Quantity < 1 {
		respondError(w, r, errQuantityRequired)
		return
	}

	c, err := h.carts.AddItem(r.Context(), ownerFrom(r.Context()), req.ProductID, *req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.carts.UpdateItemQuantity(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "productId"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type selectShippingRequest struct {
	ShippingOptionID string `json:"shippingOptionId"`
}

func (h *Handler) selectShippingOption(w http.ResponseWriter, r *http.Request) {
	var req selectShippingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.carts.SelectShippingOption(r.Context(), ownerFrom(r.Context()), req.ShippingOptionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
