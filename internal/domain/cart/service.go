package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// saveAttempts bounds the optimistic-concurrency retry loop.
const saveAttempts = 3

// Service applies cart mutations. Every mutating call recomputes the totals
// snapshot before saving, and retries on version conflicts so concurrent
// operations against one cart serialize instead of losing updates.
type Service struct {
	carts    Repository
	products product.Repository
	shipping *shipping.Resolver
	taxRate  decimal.Decimal
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, resolver *shipping.Resolver, taxRate decimal.Decimal) *Service {
	return &Service{
		carts:    carts,
		products: products,
		shipping: resolver,
		taxRate:  taxRate,
		now:      time.Now,
	}
}

// Get returns the owner's cart. A cart that has never been mutated is
// returned as an empty snapshot without being persisted.
func (s *Service) Get(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	c, err := s.carts.GetByOwner(ctx, owner)
	if errors.Is(err, ErrNotFound) {
		return s.newCart(owner), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds quantity units of the product. If the product is already in
// the cart its quantity is incremented and the captured unit price refreshed
// to the current catalog price. The price is captured, not live-linked.
func (s *Service) AddItem(ctx context.Context, owner Owner, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lookup product %s", productID)
	}

	return s.mutate(ctx, owner, func(c *Cart) error {
		if li := c.Item(productID); li != nil {
			li.Quantity += quantity
			li.UnitPrice = p.Price
			li.Name = p.Name
			li.Image = p.Image
			return nil
		}
		c.Items = append(c.Items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  quantity,
			Image:     p.Image,
		})
		return nil
	})
}

// UpdateItemQuantity sets the quantity of an existing line item. Quantity 0
// removes the item; negative quantities fail with ErrInvalidQuantity.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner Owner, productID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, owner, func(c *Cart) error {
		li := c.Item(productID)
		if li == nil {
			return ErrItemNotFound
		}
		if quantity == 0 {
			return c.removeItem(productID)
		}
		li.Quantity = quantity
		return nil
	})
}

// RemoveItem deletes a line item. Removing an absent item fails with
// ErrItemNotFound; removal is not idempotent.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID string) (*Cart, error) {
	return s.mutate(ctx, owner, func(c *Cart) error {
		return c.removeItem(productID)
	})
}

// Clear empties all line items and resets totals. It always succeeds, even
// on a cart that was already empty.
func (s *Service) Clear(ctx context.Context, owner Owner) (*Cart, error) {
	return s.mutate(ctx, owner, func(c *Cart) error {
		c.Items = nil
		return nil
	})
}

// SelectShippingOption records the shipping selection on the cart so its
// totals include the resolved shipping cost.
func (s *Service) SelectShippingOption(ctx context.Context, owner Owner, optionID string) (*Cart, error) {
	return s.mutate(ctx, owner, func(c *Cart) error {
		c.ShippingOptionID = optionID
		return nil
	})
}

// SweepExpired removes anonymous carts idle for longer than retention.
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.carts.DeleteExpired(ctx, s.now().Add(-retention))
}

// mutate loads (or creates) the owner's cart, applies fn, recomputes totals,
// and saves. On a version conflict the whole cycle is retried against a fresh
// read. fn must leave the cart untouched when it returns an error.
func (s *Service) mutate(ctx context.Context, owner Owner, fn func(*Cart) error) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}

	var lastErr error
	for range saveAttempts {
		c, err := s.carts.GetByOwner(ctx, owner)
		if errors.Is(err, ErrNotFound) {
			c = s.newCart(owner)
		} else if err != nil {
			return nil, errors.Wrap(err, "load cart")
		}

		if err := fn(c); err != nil {
			return nil, err
		}

		if err := s.recompute(ctx, c); err != nil {
			return nil, err
		}
		c.UpdatedAt = s.now()

		err = s.carts.Save(ctx, c)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
		return c, nil
	}
	return nil, errors.Wrap(lastErr, "cart mutation retries exhausted")
}

// recompute refreshes the cached totals snapshot from current items and the
// selected shipping option. An unknown selection is dropped rather than
// poisoning every later mutation.
func (s *Service) recompute(ctx context.Context, c *Cart) error {
	shippingCost := decimal.Zero
	if c.ShippingOptionID != "" && !c.IsEmpty() {
		q, err := s.shipping.Resolve(ctx, c.ShippingOptionID, c.ItemCount())
		if errors.Is(err, shipping.ErrOptionNotFound) {
			c.ShippingOptionID = ""
		} else if err != nil {
			return errors.Wrap(err, "resolve shipping")
		} else {
			shippingCost = q.Cost
		}
	}

	if c.IsEmpty() {
		c.Totals = pricing.Zero()
		return nil
	}
	c.Totals = pricing.Compute(c.PricingItems(), shippingCost, s.taxRate, decimal.Zero)
	return nil
}

func (s *Service) newCart(owner Owner) *Cart {
	now := s.now()
	return &Cart{
		ID:        uuid.New().String(),
		Owner:     owner,
		Totals:    pricing.Zero(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
