package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// Response shapes. Domain types stay transport-agnostic; the mapping to the
// wire happens here.

type productView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    string          `json:"image,omitempty"`
}

func (h *Handler) productToView(p product.Product) productView {
	return productView{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Category: p.Category,
		Image:    h.imageURL(p.Image),
	}
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

type shippingOptionView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	EstimatedDays string          `json:"estimatedDays"`
}

func shippingOptionToView(o shipping.Option) shippingOptionView {
	return shippingOptionView{
		ID:            o.ID,
		Name:          o.Name,
		BasePrice:     o.BasePrice,
		EstimatedDays: o.EstimatedDays,
	}
}

type orderView struct {
	Number        string               `json:"orderNumber"`
	Display       string               `json:"displayNumber"`
	Status        string               `json:"status"`
	PaymentStatus string               `json:"paymentStatus"`
	Items         []order.Item         `json:"items"`
	Shipping      shipping.Quote       `json:"shipping"`
	Billing       order.BillingInfo    `json:"billingInfo"`
	Totals        pricing.Totals       `json:"totals"`
	History       []order.HistoryEntry `json:"history"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func orderToView(o *order.Order) orderView {
	return orderView{
		Number:        o.Number,
		Display:       o.FormattedNumber(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Items:         o.Items,
		Shipping:      o.Shipping,
		Billing:       o.Billing,
		Totals:        o.Totals,
		History:       o.History,
		CreatedAt:     o.CreatedAt,
	}
}
