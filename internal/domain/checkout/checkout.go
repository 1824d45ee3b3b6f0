// Package checkout ties cart, shipping, pricing, order, and payment together
// for the place-order flow.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// Request is the single validated input type for placing an order. Malformed
// input is rejected, never guessed at.
type Request struct {
	ShippingOptionID string         `json:"shippingOption" validate:"required"`
	Billing          BillingRequest `json:"billingInfo" validate:"required"`
}

// BillingRequest carries the customer billing details.
type BillingRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// ValidationError reports which request fields failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid checkout request: " + joinFields(e.Fields)
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}

// Result is returned to the caller after a successful checkout. The client
// completes payment with the secret; the cart is cleared later, when the
// provider confirms payment.
type Result struct {
	Order        *order.Order
	ClientSecret string
}

// Service coordinates the place-order use case.
type Service struct {
	validate *validator.Validate
	carts    cart.Repository
	shipping *shipping.Resolver
	orders   order.Repository
	payments *payment.Orchestrator

	taxRate       decimal.Decimal
	currency      string
	intentTimeout time.Duration
	now           func() time.Time
}

// NewService creates a checkout Service. intentTimeout bounds the payment
// provider call during checkout.
func NewService(
	carts cart.Repository,
	resolver *shipping.Resolver,
	orders order.Repository,
	payments *payment.Orchestrator,
	taxRate decimal.Decimal,
	currency string,
	intentTimeout time.Duration,
) *Service {
	if intentTimeout <= 0 {
		intentTimeout = 10 * time.Second
	}
	return &Service{
		validate:      validator.New(),
		carts:         carts,
		shipping:      resolver,
		orders:        orders,
		payments:      payments,
		taxRate:       taxRate,
		currency:      currency,
		intentTimeout: intentTimeout,
		now:           time.Now,
	}
}

// PlaceOrder snapshots the owner's cart into a pending order and requests a
// payment intent for its total. The cart is left intact: it is cleared only
// after the provider confirms payment, so a failed checkout loses nothing.
// On a provider failure the created order stays pending and the client may
// retry payment against it.
func (s *Service) PlaceOrder(ctx context.Context, owner cart.Owner, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			fields := make([]string, len(vErrs))
			for i, fe := range vErrs {
				fields[i] = fe.Field()
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, errors.Wrap(err, "validate request")
	}

	c, err := s.carts.GetByOwner(ctx, owner)
	if errors.Is(err, cart.ErrNotFound) {
		return nil, order.ErrEmptyCart
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, order.ErrEmptyCart
	}

	quote, err := s.shipping.Resolve(ctx, req.ShippingOptionID, c.ItemCount())
	if err != nil {
		if errors.Is(err, shipping.ErrOptionNotFound) {
			return nil, shipping.ErrOptionNotFound
		}
		return nil, errors.Wrap(err, "resolve shipping")
	}

	totals := pricing.Compute(c.PricingItems(), quote.Cost, s.taxRate, decimal.Zero)

	items := make([]order.Item, len(c.Items))
	for i, li := range c.Items {
		items[i] = order.Item{
			ProductID: li.ProductID,
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
			Image:     li.Image,
		}
	}

	ord, err := order.New(order.Params{
		CartID:   c.ID,
		Items:    items,
		Shipping: *quote,
		Billing: order.BillingInfo{
			Name:         req.Billing.Name,
			Email:        req.Billing.Email,
			AddressLine1: req.Billing.AddressLine1,
			AddressLine2: req.Billing.AddressLine2,
			City:         req.Billing.City,
			PostalCode:   req.Billing.PostalCode,
			Country:      req.Billing.Country,
		},
		Totals: totals,
		Now:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	intentCtx, cancel := context.WithTimeout(ctx, s.intentTimeout)
	defer cancel()

	intent, err := s.payments.CreateIntent(intentCtx, ord, s.currency)
	if err != nil {
		// The order is not deleted: it stays pending for a payment retry.
		return nil, err
	}

	return &Result{Order: ord, ClientSecret: intent.ClientSecret}, nil
}
