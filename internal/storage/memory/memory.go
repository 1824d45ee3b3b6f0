// Package memory provides in-memory implementations of the domain
// repositories. They satisfy the same contracts as the postgres
// implementations and back the handler tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
)

var (
	_ product.Repository  = (*ProductRepository)(nil)
	_ shipping.Repository = (*ShippingRepository)(nil)
	_ cart.Repository     = (*CartRepository)(nil)
	_ order.Repository    = (*OrderRepository)(nil)
)

// ProductRepository holds a fixed product catalog.
type ProductRepository struct {
	mu   sync.RWMutex
	byID map[string]product.Product
	ids  []string
}

// NewProductRepository creates a catalog seeded with the given products.
func NewProductRepository(products ...product.Product) *ProductRepository {
	r := &ProductRepository{byID: make(map[string]product.Product, len(products))}
	for _, p := range products {
		r.byID[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}
	return r
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(p product.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		r.ids = append(r.ids, p.ID)
	}
	r.byID[p.ID] = p
}

func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]product.Product, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// ShippingRepository holds a fixed shipping option catalog.
type ShippingRepository struct {
	mu   sync.RWMutex
	byID map[string]shipping.Option
	ids  []string
}

// NewShippingRepository creates a catalog seeded with the given options.
func NewShippingRepository(options ...shipping.Option) *ShippingRepository {
	r := &ShippingRepository{byID: make(map[string]shipping.Option, len(options))}
	for _, o := range options {
		r.byID[o.ID] = o
		r.ids = append(r.ids, o.ID)
	}
	return r
}

func (r *ShippingRepository) List(_ context.Context) ([]shipping.Option, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]shipping.Option, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *ShippingRepository) GetByID(_ context.Context, id string) (*shipping.Option, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, shipping.ErrOptionNotFound
	}
	return &o, nil
}

// CartRepository stores carts keyed by owner, with the same optimistic
// version semantics as the postgres implementation.
type CartRepository struct {
	mu    sync.Mutex
	byKey map[string]*cart.Cart
}

// NewCartRepository creates an empty cart store.
func NewCartRepository() *CartRepository {
	return &CartRepository{byKey: make(map[string]*cart.Cart)}
}

func (r *CartRepository) GetByOwner(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byKey[owner.Key()]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return copyCart(c), nil
}

func (r *CartRepository) Save(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byKey[c.Owner.Key()]
	switch {
	case !ok && c.Version != 0:
		return cart.ErrVersionConflict
	case ok && stored.Version != c.Version:
		return cart.ErrVersionConflict
	}
	c.Version++
	r.byKey[c.Owner.Key()] = copyCart(c)
	return nil
}

func (r *CartRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, c := range r.byKey {
		if c.ID == id {
			delete(r.byKey, k)
			return nil
		}
	}
	return nil
}

func (r *CartRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, c := range r.byKey {
		if c.Owner.Anonymous() && c.UpdatedAt.Before(cutoff) {
			delete(r.byKey, k)
			n++
		}
	}
	return n, nil
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = append([]cart.LineItem(nil), c.Items...)
	return &cp
}

// OrderRepository stores orders and the applied payment-event set. A single
// mutex serializes ApplyEvent, matching the row-lock serialization the
// postgres implementation gets from its transaction.
type OrderRepository struct {
	mu       sync.Mutex
	byID     map[string]*order.Order
	byNumber map[string]string
	byRef    map[string]string
	applied  map[string]bool
}

// NewOrderRepository creates an empty order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:     make(map[string]*order.Order),
		byNumber: make(map[string]string),
		byRef:    make(map[string]string),
		applied:  make(map[string]bool),
	}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[o.Number]; ok {
		return order.ErrDuplicateNumber
	}
	cp := copyOrder(o)
	r.byID[o.ID] = cp
	r.byNumber[o.Number] = o.ID
	if o.PaymentRef != "" {
		r.byRef[o.PaymentRef] = o.ID
	}
	return nil
}

func (r *OrderRepository) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byNumber[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(r.byID[id]), nil
}

func (r *OrderRepository) GetByPaymentRef(_ context.Context, ref string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[ref]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(r.byID[id]), nil
}

func (r *OrderRepository) SetPaymentRef(_ context.Context, orderID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.PaymentRef != "" {
		delete(r.byRef, o.PaymentRef)
	}
	o.PaymentRef = ref
	r.byRef[ref] = orderID
	return nil
}

func (r *OrderRepository) IsEventApplied(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied[eventID], nil
}

func (r *OrderRepository) ApplyEvent(_ context.Context, orderID, eventID, _ string, apply func(*order.Order) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applied[eventID] {
		return false, nil
	}
	o, ok := r.byID[orderID]
	if !ok {
		return false, order.ErrNotFound
	}

	// Work on a copy so a failed apply leaves the stored order untouched.
	cp := copyOrder(o)
	if err := apply(cp); err != nil {
		return false, err
	}
	r.byID[orderID] = cp
	r.applied[eventID] = true
	return true, nil
}

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	cp.History = append([]order.HistoryEntry(nil), o.History...)
	return &cp
}
