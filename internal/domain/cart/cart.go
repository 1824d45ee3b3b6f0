// Package cart owns the mutable collection of prospective purchase line
// items for a session or an authenticated user.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// Sentinel errors for cart operations.
var (
	ErrNotFound        = errors.New("cart not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrVersionConflict = errors.New("cart version conflict")
	ErrNoOwner         = errors.New("cart owner required")
)

// Owner identifies who a cart belongs to. Exactly one of SessionID or UserID
// is set: anonymous carts are session-bound and expire, authenticated carts
// survive indefinitely.
type Owner struct {
	SessionID string
	UserID    string
}

// Anonymous reports whether the owner is a session without an authenticated user.
func (o Owner) Anonymous() bool { return o.UserID == "" }

// Key returns a stable storage key for the owner.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

// Valid reports whether exactly one identifier is set.
func (o Owner) Valid() bool {
	return (o.SessionID == "") != (o.UserID == "")
}

// LineItem is a single product row in the cart. Quantity is always >= 1; a
// mutation that would drop it to 0 removes the row instead.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Subtotal returns unit price times quantity, derived on demand.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is the aggregate root. Items are ordered by insertion and keyed
// uniquely by product id. Totals is a cached snapshot recomputed by the
// Service after every mutation; it is never patched in place.
type Cart struct {
	ID               string         `json:"id"`
	Owner            Owner          `json:"-"`
	Items            []LineItem     `json:"items"`
	ShippingOptionID string         `json:"shippingOptionId,omitempty"`
	Totals           pricing.Totals `json:"totals"`

	// Version backs optimistic concurrency: Save fails with
	// ErrVersionConflict when the stored version differs.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsEmpty reports whether the cart holds no line items.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// ItemCount returns the total unit count across all line items.
func (c *Cart) ItemCount() int {
	n := 0
	for _, li := range c.Items {
		n += li.Quantity
	}
	return n
}

// Item returns the line item for the given product id, or nil.
func (c *Cart) Item(productID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// PricingItems converts the cart's line items for totals computation.
func (c *Cart) PricingItems() []pricing.Item {
	out := make([]pricing.Item, len(c.Items))
	for i, li := range c.Items {
		out[i] = pricing.Item{
			ProductID: li.ProductID,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
		}
	}
	return out
}

// removeItem deletes the line item for the product id, preserving insertion
// order of the rest. It returns ErrItemNotFound when absent.
func (c *Cart) removeItem(productID string) error {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Repository defines persistence operations for carts. Implementations must
// make Save atomic with respect to the version check so concurrent mutations
// of one cart cannot silently drop an increment.
type Repository interface {
	// GetByOwner returns the owner's cart or ErrNotFound.
	GetByOwner(ctx context.Context, owner Owner) (*Cart, error)
	// Save persists the cart. A cart with Version 0 is inserted; otherwise
	// the stored row is updated only if its version still matches, and the
	// version is incremented. Returns ErrVersionConflict on a lost race.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the cart by id. Deleting an absent cart is a no-op.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes anonymous carts not touched since the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
