package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/pricing"
)

const (
	getCartSQL = `SELECT id, session_id, user_id, shipping_option_id, items, totals, version, created_at, updated_at
		FROM carts WHERE ($1 <> '' AND session_id = $1) OR ($2 <> '' AND user_id = $2)`

	insertCartSQL = `INSERT INTO carts (id, session_id, user_id, shipping_option_id, items, totals, version, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, 1, $7, $8)`

	updateCartSQL = `UPDATE carts
		SET shipping_option_id = $1, items = $2, totals = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`

	deleteExpiredCartsSQL = `DELETE FROM carts WHERE user_id IS NULL AND updated_at < $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Optimistic
// concurrency rides on the version column: updates match the loaded version
// and bump it, so a lost race surfaces as cart.ErrVersionConflict.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByOwner returns the owner's cart or cart.ErrNotFound.
func (r *CartRepository) GetByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, owner.SessionID, owner.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Save inserts the cart when its version is 0, otherwise performs a
// version-checked update. Line items and totals are serialized to JSONB.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}
	totalsJSON, err := json.Marshal(c.Totals)
	if err != nil {
		return errors.Wrap(err, "marshal cart totals")
	}

	if c.Version == 0 {
		_, err := r.pool.Exec(ctx, insertCartSQL,
			c.ID, c.Owner.SessionID, c.Owner.UserID, c.ShippingOptionID,
			itemsJSON, totalsJSON, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			// A concurrent first mutation won the insert for this owner.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return cart.ErrVersionConflict
			}
			return errors.Wrapf(err, "insert cart %q", c.ID)
		}
		c.Version = 1
		return nil
	}

	tag, err := r.pool.Exec(ctx, updateCartSQL,
		c.ShippingOptionID, itemsJSON, totalsJSON, c.UpdatedAt, c.ID, c.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "update cart %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrVersionConflict
	}
	c.Version++
	return nil
}

// Delete removes the cart by id. Deleting an absent cart is a no-op.
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, id); err != nil {
		return errors.Wrapf(err, "delete cart %q", id)
	}
	return nil
}

// DeleteExpired removes anonymous carts idle since before the cutoff.
func (r *CartRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteExpiredCartsSQL, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired carts")
	}
	return tag.RowsAffected(), nil
}

func scanCart(row pgx.CollectableRow) (*cart.Cart, error) {
	var (
		c                 cart.Cart
		sessionID, userID *string
		itemsJSON         []byte
		totalsJSON        []byte
	)
	err := row.Scan(&c.ID, &sessionID, &userID, &c.ShippingOptionID,
		&itemsJSON, &totalsJSON, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		c.Owner.SessionID = *sessionID
	}
	if userID != nil {
		c.Owner.UserID = *userID
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart items")
	}
	if len(totalsJSON) > 0 && string(totalsJSON) != "{}" {
		if err := json.Unmarshal(totalsJSON, &c.Totals); err != nil {
			return nil, errors.Wrap(err, "unmarshal cart totals")
		}
	} else {
		c.Totals = pricing.Zero()
	}
	return &c, nil
}
