// Package handler exposes the storefront API over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// WebhookSecret signs incoming payment provider events.
	WebhookSecret string
}

// Handler routes API requests to the domain services.
type Handler struct {
	products     product.Repository
	shippingOpts shipping.Repository
	carts        *cart.Service
	checkout     *checkout.Service
	orders       order.Repository
	payments     *payment.Orchestrator

	imageBaseURL  string
	webhookSecret []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	shippingOpts shipping.Repository,
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	orders order.Repository,
	payments *payment.Orchestrator,
) *Handler {
	return &Handler{
		products:      products,
		shippingOpts:  shippingOpts,
		carts:         carts,
		checkout:      checkoutSvc,
		orders:        orders,
		payments:      payments,
		imageBaseURL:  cfg.ImageBaseURL,
		webhookSecret: []byte(cfg.WebhookSecret),
	}
}

// Routes mounts all API endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/api/products", h.listProducts)
	r.Get("/api/products/{productId}", h.getProduct)
	r.Get("/api/shipping-options", h.listShippingOptions)

	r.Group(func(r chi.Router) {
		r.Use(Session)

		r.Get("/api/cart", h.getCart)
		r.Delete("/api/cart", h.clearCart)
		r.Post("/api/cart/items", h.addCartItem)
		r.Put("/api/cart/items/{productId}", h.updateCartItem)
		r.Delete("/api/cart/items/{productId}", h.removeCartItem)
		r.Put("/api/cart/shipping-option", h.selectShippingOption)

		r.Post("/api/checkout", h.placeOrder)
	})

	r.Get("/api/orders/{orderNumber}", h.getOrder)
	r.Post("/api/payments/webhook", h.paymentWebhook)

	return r
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errBadJSON marks a request body that could not be decoded.
var errBadJSON = errors.New("malformed request body")

// errQuantityRequired rejects add-item bodies without a usable quantity.
var errQuantityRequired = errors.New("quantity is required and must be at least 1")

// respondError maps domain errors onto stable HTTP statuses and error kinds.
// Internal detail never leaks to clients; it goes to the request logger.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		resp   = errorResponse{Kind: "internal", Message: "internal error"}
	)

	var (
		vErr  *checkout.ValidationError
		tErr  *order.InvalidTransitionError
		pvErr *payment.ProviderError
	)
	switch {
	case errors.As(err, &vErr):
		status, resp = http.StatusBadRequest, errorResponse{Kind: "validation", Message: vErr.Error()}
	case errors.Is(err, errBadJSON),
		errors.Is(err, errQuantityRequired),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNoOwner),
		errors.Is(err, order.ErrEmptyCart):
		status, resp = http.StatusBadRequest, errorResponse{Kind: "validation", Message: err.Error()}
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, shipping.ErrOptionNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		status, resp = http.StatusNotFound, errorResponse{Kind: "not_found", Message: err.Error()}
	case errors.Is(err, cart.ErrVersionConflict):
		status, resp = http.StatusConflict, errorResponse{Kind: "state_conflict", Message: "cart was modified concurrently, retry"}
	case errors.As(err, &tErr):
		status, resp = http.StatusConflict, errorResponse{Kind: "state_conflict", Message: tErr.Error()}
	case errors.As(err, &pvErr):
		status, resp = http.StatusBadGateway, errorResponse{Kind: "payment_unavailable", Message: "payment processing failed, please retry"}
	}

	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}
