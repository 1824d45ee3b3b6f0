package rediscache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
)

type fakeInner struct {
	mu      sync.Mutex
	byOwner map[string]*cart.Cart
	gets    int
	saveErr error
}

func newFakeInner(carts ...*cart.Cart) *fakeInner {
	f := &fakeInner{byOwner: make(map[string]*cart.Cart)}
	for _, c := range carts {
		f.byOwner[c.Owner.Key()] = c
	}
	return f
}

func (f *fakeInner) GetByOwner(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	c, ok := f.byOwner[owner.Key()]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (f *fakeInner) Save(_ context.Context, c *cart.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.byOwner[c.Owner.Key()] = c
	return nil
}

func (f *fakeInner) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, c := range f.byOwner {
		if c.ID == id {
			delete(f.byOwner, key)
		}
	}
	return nil
}

func (f *fakeInner) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func setupCache(t *testing.T, inner cart.Repository) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(inner, client), mr
}

func testCart(owner cart.Owner) *cart.Cart {
	return &cart.Cart{
		ID:    "cart-1",
		Owner: owner,
		Items: []cart.LineItem{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("9.99"), Quantity: 2},
		},
		Version: 3,
	}
}

func TestGetByOwnerCachesAfterMiss(t *testing.T) {
	owner := cart.Owner{SessionID: "sess-1"}
	inner := newFakeInner(testCart(owner))
	repo, mr := setupCache(t, inner)
	ctx := context.Background()

	c, err := repo.GetByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, mr.Exists(cacheKey(owner)))

	// Second read is served from the cache with owner and version restored.
	c, err = repo.GetByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, owner, c.Owner)
	assert.Equal(t, int64(3), c.Version)
}

func TestGetByOwnerFallsThroughWhenRedisDown(t *testing.T) {
	owner := cart.Owner{SessionID: "sess-1"}
	inner := newFakeInner(testCart(owner))
	repo, mr := setupCache(t, inner)
	mr.Close()

	c, err := repo.GetByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", c.ID)
}

func TestSaveVersionConflictInvalidates(t *testing.T) {
	owner := cart.Owner{SessionID: "sess-1"}
	inner := newFakeInner()
	inner.saveErr = cart.ErrVersionConflict
	repo, mr := setupCache(t, inner)

	require.NoError(t, mr.Set(cacheKey(owner), "stale"))

	err := repo.Save(context.Background(), testCart(owner))
	require.ErrorIs(t, err, cart.ErrVersionConflict)
	assert.False(t, mr.Exists(cacheKey(owner)), "conflicting save must drop the cached entry")
}

func TestDeleteInvalidatesCachedEntry(t *testing.T) {
	owner := cart.Owner{SessionID: "sess-1"}
	inner := newFakeInner()
	repo, mr := setupCache(t, inner)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testCart(owner)))
	require.True(t, mr.Exists(cacheKey(owner)))

	// Deleting by cart id (the payment-confirmed path) must not leave the
	// owner's cached snapshot readable.
	require.NoError(t, repo.Delete(ctx, "cart-1"))
	assert.False(t, mr.Exists(cacheKey(owner)))
	assert.False(t, mr.Exists(idKey("cart-1")))

	_, err := repo.GetByOwner(ctx, owner)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestDeleteWithoutMapping(t *testing.T) {
	repo, _ := setupCache(t, newFakeInner())

	require.NoError(t, repo.Delete(context.Background(), "never-cached"))
}
