// Package rediscache layers a cache-aside Redis cache over a cart
// repository. Reads are served from the cache when possible; every write
// goes through the underlying repository first.
package rediscache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	baseTTL   = 15 * time.Minute
	ttlJitter = 5 * time.Minute
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository decorates a cart.Repository with a Redis cache keyed by
// cart owner. Version conflicts invalidate the cached entry so the retry in
// the cart service re-reads fresh state.
type CartRepository struct {
	inner  cart.Repository
	client *redis.Client
}

// New wraps the inner repository with the given Redis client.
func New(inner cart.Repository, client *redis.Client) *CartRepository {
	return &CartRepository{inner: inner, client: client}
}

// cachedCart carries the owner alongside the cart, since Owner is not part
// of the cart's JSON representation.
type cachedCart struct {
	Cart      *cart.Cart `json:"cart"`
	SessionID string     `json:"sessionId,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Version   int64      `json:"version"`
}

func (r *CartRepository) GetByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	key := cacheKey(owner)
	data, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached cachedCart
		if err := json.Unmarshal(data, &cached); err == nil && cached.Cart != nil {
			c := cached.Cart
			c.Owner = cart.Owner{SessionID: cached.SessionID, UserID: cached.UserID}
			c.Version = cached.Version
			return c, nil
		}
		// Corrupt entry: drop it and fall through to the source of truth.
		r.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take the cart store with it.
		return r.inner.GetByOwner(ctx, owner)
	}

	c, err := r.inner.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	r.set(ctx, c)
	return c, nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	err := r.inner.Save(ctx, c)
	if err != nil {
		if errors.Is(err, cart.ErrVersionConflict) {
			r.client.Del(ctx, cacheKey(c.Owner))
		}
		return err
	}
	r.set(ctx, c)
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	// Deletes arrive keyed by cart id (the payment flow clears the cart that
	// produced the order), so set() maintains an id -> owner-key mapping to
	// reach the cached entry. A paid-for cart must not stay readable from the
	// cache.
	ownerKey, err := r.client.Get(ctx, idKey(id)).Result()
	if err == nil {
		r.client.Del(ctx, ownerKey, idKey(id))
	} else if !errors.Is(err, redis.Nil) {
		// Redis unavailable: the inner store is already clean, and the entry
		// ages out via TTL at worst.
		return nil
	}
	return nil
}

func (r *CartRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.inner.DeleteExpired(ctx, cutoff)
}

// set caches the cart with a jittered TTL. Failures are ignored: the cache
// is an optimization, not a store.
func (r *CartRepository) set(ctx context.Context, c *cart.Cart) {
	data, err := json.Marshal(cachedCart{
		Cart:      c,
		SessionID: c.Owner.SessionID,
		UserID:    c.Owner.UserID,
		Version:   c.Version,
	})
	if err != nil {
		return
	}
	ttl := baseTTL + time.Duration(rand.Intn(int(ttlJitter.Minutes())+1))*time.Minute
	r.client.Set(ctx, cacheKey(c.Owner), data, ttl)
	if c.ID != "" {
		r.client.Set(ctx, idKey(c.ID), cacheKey(c.Owner), ttl)
	}
}

func cacheKey(owner cart.Owner) string {
	return "cart:" + owner.Key()
}

func idKey(id string) string {
	return "cartid:" + id
}
