package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// --- Mock implementations ---

type mockCartRepo struct {
	mu    sync.Mutex
	byKey map[string]*Cart

	// conflictsLeft forces Save to fail with ErrVersionConflict N times.
	conflictsLeft int
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{byKey: make(map[string]*Cart)}
}

func (m *mockCartRepo) GetByOwner(_ context.Context, owner Owner) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byKey[owner.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Items = append([]LineItem(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return ErrVersionConflict
	}
	stored, ok := m.byKey[c.Owner.Key()]
	if ok && stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	cp := *c
	cp.Items = append([]LineItem(nil), c.Items...)
	m.byKey[c.Owner.Key()] = &cp
	return nil
}

func (m *mockCartRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.byKey {
		if c.ID == id {
			delete(m.byKey, k)
		}
	}
	return nil
}

func (m *mockCartRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.byKey {
		if c.Owner.Anonymous() && c.UpdatedAt.Before(cutoff) {
			delete(m.byKey, k)
			n++
		}
	}
	return n, nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockShippingRepo struct {
	byID map[string]*shipping.Option
}

func (m *mockShippingRepo) List(_ context.Context) ([]shipping.Option, error) { return nil, nil }

func (m *mockShippingRepo) GetByID(_ context.Context, id string) (*shipping.Option, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, shipping.ErrOptionNotFound
	}
	return o, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testService(repo *mockCartRepo, products ...product.Product) *Service {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	resolver := shipping.NewResolver(&mockShippingRepo{byID: map[string]*shipping.Option{
		"standard": {ID: "standard", Name: "Standard", BasePrice: dec("5.99"), EstimatedDays: "5 business days"},
	}})
	return NewService(repo, &mockProductRepo{byID: byID}, resolver, dec("0.085"))
}

func widget() product.Product {
	return product.Product{ID: "p1", Name: "Widget", Price: dec("29.99")}
}

func gadget() product.Product {
	return product.Product{ID: "p2", Name: "Gadget", Price: dec("49.99")}
}

func sessionOwner() Owner { return Owner{SessionID: "sess-1"} }

// --- Tests ---

func TestGet_UnknownOwnerReturnsEmptyCart(t *testing.T) {
	svc := testService(newMockCartRepo())

	c, err := svc.Get(context.Background(), sessionOwner())
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Totals.Total.IsZero())
}

func TestAddItem_NewAndIncrement(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())
	owner := sessionOwner()

	c, err := svc.AddItem(context.Background(), owner, "p1", 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	c, err = svc.AddItem(context.Background(), owner, "p1", 3)
	require.NoError(t, err)
	require.Len(t, c.Items, 1, "re-add must increment, not duplicate")
	assert.Equal(t, 5, c.Items[0].Quantity)
}

func TestAddItem_ProductNotFound(t *testing.T) {
	svc := testService(newMockCartRepo())

	_, err := svc.AddItem(context.Background(), sessionOwner(), "ghost", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())

	_, err := svc.AddItem(context.Background(), sessionOwner(), "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItem_RecomputesTotals(t *testing.T) {
	svc := testService(newMockCartRepo(), widget(), gadget())
	owner := sessionOwner()

	_, err := svc.AddItem(context.Background(), owner, "p1", 2)
	require.NoError(t, err)
	c, err := svc.AddItem(context.Background(), owner, "p2", 1)
	require.NoError(t, err)

	// 2*29.99 + 49.99 = 109.97; tax 8.5% = 9.35; no shipping selected.
	assert.True(t, dec("109.97").Equal(c.Totals.Subtotal), "subtotal: %s", c.Totals.Subtotal)
	assert.True(t, dec("9.35").Equal(c.Totals.Tax))
	assert.True(t, dec("119.32").Equal(c.Totals.Total))
}

func TestTotalsInvariantAcrossMutations(t *testing.T) {
	svc := testService(newMockCartRepo(), widget(), gadget())
	owner := sessionOwner()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, owner, "p1", 3)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, "p2", 2)
	require.NoError(t, err)
	_, err = svc.UpdateItemQuantity(ctx, owner, "p1", 1)
	require.NoError(t, err)
	c, err := svc.RemoveItem(ctx, owner, "p2")
	require.NoError(t, err)

	want := c.Totals.Subtotal.Add(c.Totals.ShippingCost).Add(c.Totals.Tax).Sub(c.Totals.Discount)
	assert.True(t, want.Equal(c.Totals.Total))
}

func TestUpdateItemQuantity_ZeroRemoves(t *testing.T) {
	svc := testService(newMockCartRepo(), widget(), gadget())
	owner := sessionOwner()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, "p2", 1)
	require.NoError(t, err)

	c, err := svc.UpdateItemQuantity(ctx, owner, "p1", 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ProductID)
	// Totals reflect the removal, same as removeItem would produce.
	assert.True(t, dec("49.99").Equal(c.Totals.Subtotal))
}

func TestUpdateItemQuantity_Negative(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())
	_, err := svc.AddItem(context.Background(), sessionOwner(), "p1", 1)
	require.NoError(t, err)

	_, err = svc.UpdateItemQuantity(context.Background(), sessionOwner(), "p1", -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateItemQuantity_AbsentItem(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())

	_, err := svc.UpdateItemQuantity(context.Background(), sessionOwner(), "p1", 2)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem_SecondRemovalFails(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())
	owner := sessionOwner()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, owner, "p1", 1)
	require.NoError(t, err)

	_, err = svc.RemoveItem(ctx, owner, "p1")
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, owner, "p1")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestClear_AlwaysSucceeds(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())
	owner := sessionOwner()
	ctx := context.Background()

	c, err := svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.AddItem(ctx, owner, "p1", 4)
	require.NoError(t, err)
	c, err = svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Totals.Total.IsZero())
}

func TestSelectShippingOption_IncludedInTotals(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())
	owner := sessionOwner()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, owner, "p1", 1)
	require.NoError(t, err)
	c, err := svc.SelectShippingOption(ctx, owner, "standard")
	require.NoError(t, err)

	assert.True(t, dec("5.99").Equal(c.Totals.ShippingCost))
	want := c.Totals.Subtotal.Add(c.Totals.ShippingCost).Add(c.Totals.Tax)
	assert.True(t, want.Equal(c.Totals.Total))
}

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	repo := newMockCartRepo()
	svc := testService(repo, widget())

	repo.conflictsLeft = 2
	c, err := svc.AddItem(context.Background(), sessionOwner(), "p1", 1)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}

func TestMutate_RetriesExhausted(t *testing.T) {
	repo := newMockCartRepo()
	svc := testService(repo, widget())

	repo.conflictsLeft = saveAttempts
	_, err := svc.AddItem(context.Background(), sessionOwner(), "p1", 1)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestMutate_RequiresOwner(t *testing.T) {
	svc := testService(newMockCartRepo(), widget())

	_, err := svc.AddItem(context.Background(), Owner{}, "p1", 1)
	require.ErrorIs(t, err, ErrNoOwner)

	_, err = svc.AddItem(context.Background(), Owner{SessionID: "s", UserID: "u"}, "p1", 1)
	require.ErrorIs(t, err, ErrNoOwner)
}

func TestSweepExpired_AnonymousOnly(t *testing.T) {
	repo := newMockCartRepo()
	svc := testService(repo, widget())
	ctx := context.Background()

	_, err := svc.AddItem(ctx, Owner{SessionID: "old-sess"}, "p1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, Owner{UserID: "user-1"}, "p1", 1)
	require.NoError(t, err)

	// Pretend time has moved past the retention window.
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	removed, err := svc.SweepExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetByOwner(ctx, Owner{UserID: "user-1"})
	assert.NoError(t, err, "authenticated carts survive the sweep")
}
