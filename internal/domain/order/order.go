// Package order holds the immutable-once-created order snapshot and the
// fulfillment/payment status machines layered on top of it.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// Sentinel errors for order operations.
var (
	ErrNotFound        = errors.New("order not found")
	ErrEmptyCart       = errors.New("cannot create order from empty cart")
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// orderTransitions lists the allowed fulfillment transitions. Cancellation is
// only reachable before the order ships.
var orderTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// CanTransitionTo reports whether the fulfillment machine allows s -> target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range orderTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment sub-state, tracked independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransitionTo reports whether the payment machine allows s -> target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// InvalidTransitionError indicates a rejected status transition. The order is
// left unchanged when it is returned.
type InvalidTransitionError struct {
	From, To string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Item is a frozen order line. Unlike a cart line its price is never
// refreshed after creation.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// BillingInfo is the customer billing snapshot captured at checkout.
type BillingInfo struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

// Order is a snapshot of a cart at checkout time. Items, shipping, billing,
// and totals are frozen at creation; only the status fields, payment
// reference, and history change afterwards.
type Order struct {
	ID     string
	Number string
	CartID string

	Items    []Item
	Shipping shipping.Quote
	Billing  BillingInfo
	Totals   pricing.Totals

	Status        Status
	PaymentStatus PaymentStatus
	PaymentRef    string
	History       []HistoryEntry

	CreatedAt time.Time
}

// Params collects the inputs for creating an order.
type Params struct {
	CartID   string
	Items    []Item
	Shipping shipping.Quote
	Billing  BillingInfo
	Totals   pricing.Totals
	Now      time.Time
}

// New creates a pending order from a cart snapshot. It fails with
// ErrEmptyCart when no items are given.
func New(p Params) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyCart
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	o := &Order{
		ID:            uuid.New().String(),
		Number:        newNumber(now),
		CartID:        p.CartID,
		Items:         p.Items,
		Shipping:      p.Shipping,
		Billing:       p.Billing,
		Totals:        p.Totals,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
	}
	o.History = append(o.History, HistoryEntry{
		Status: string(StatusPending),
		Note:   "order created",
		At:     now,
	})
	return o, nil
}

// newNumber builds the externally shareable order number, distinct from the
// internal id: date plus a short random suffix.
func newNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102"), suffix)
}

// TransitionTo moves the fulfillment status and appends a history entry. An
// invalid target fails with InvalidTransitionError and changes nothing.
func (o *Order) TransitionTo(target Status, note string, now time.Time) error {
	if !o.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{From: string(o.Status), To: string(target)}
	}
	o.Status = target
	o.History = append(o.History, HistoryEntry{Status: string(target), Note: note, At: now})
	return nil
}

// TransitionPayment moves the payment sub-status and appends a history entry.
func (o *Order) TransitionPayment(target PaymentStatus, note string, now time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(target) {
		return &InvalidTransitionError{
			From: "payment:" + string(o.PaymentStatus),
			To:   "payment:" + string(target),
		}
	}
	o.PaymentStatus = target
	o.History = append(o.History, HistoryEntry{
		Status: "payment:" + string(target),
		Note:   note,
		At:     now,
	})
	return nil
}

// FormattedNumber is a pure presentation helper for the order number.
func (o *Order) FormattedNumber() string {
	return "ORD-" + o.Number
}

// Repository defines persistence operations for orders and the applied
// payment-event set that backs webhook idempotency. The two are co-located so
// ApplyEvent can mark an event applied atomically with the transition.
type Repository interface {
	// Create persists a new order; ErrDuplicateNumber on a number collision.
	Create(ctx context.Context, o *Order) error
	// GetByNumber returns the order with the given external number.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// GetByPaymentRef returns the order holding the given provider reference.
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	// SetPaymentRef records the provider-side payment reference.
	SetPaymentRef(ctx context.Context, orderID, ref string) error
	// IsEventApplied reports whether the event id has already been applied.
	IsEventApplied(ctx context.Context, eventID string) (bool, error)
	// ApplyEvent runs apply against the current order state and persists the
	// mutation together with the applied-event mark as one atomic unit. It
	// returns (false, nil) without calling apply when the event id was
	// already applied. Calls for one order are serialized.
	ApplyEvent(ctx context.Context, orderID, eventID, eventType string, apply func(*Order) error) (bool, error)
}
