package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/shipping"
)

const (
	listShippingOptionsSQL = `SELECT id, name, base_price, estimated_days
		FROM shipping_options ORDER BY base_price`

	getShippingOptionSQL = `SELECT id, name, base_price, estimated_days
		FROM shipping_options WHERE id = $1`

	upsertShippingOptionSQL = `INSERT INTO shipping_options (id, name, base_price, estimated_days)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, base_price = EXCLUDED.base_price,
		    estimated_days = EXCLUDED.estimated_days`
)

var _ shipping.Repository = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// List returns all shipping options ordered by price.
func (r *ShippingRepository) List(ctx context.Context) ([]shipping.Option, error) {
	rows, err := r.pool.Query(ctx, listShippingOptionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list shipping options")
	}
	return pgx.CollectRows(rows, scanShippingOption)
}

// GetByID returns a single shipping option by its identifier.
func (r *ShippingRepository) GetByID(ctx context.Context, id string) (*shipping.Option, error) {
	rows, err := r.pool.Query(ctx, getShippingOptionSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get shipping option %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanShippingOption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrOptionNotFound
		}
		return nil, errors.Wrapf(err, "get shipping option %q", id)
	}
	return &o, nil
}

// Upsert inserts or updates a shipping option. Used by the ingest tooling.
func (r *ShippingRepository) Upsert(ctx context.Context, o shipping.Option) error {
	_, err := r.pool.Exec(ctx, upsertShippingOptionSQL, o.ID, o.Name, o.BasePrice, o.EstimatedDays)
	if err != nil {
		return errors.Wrapf(err, "upsert shipping option %q", o.ID)
	}
	return nil
}

func scanShippingOption(row pgx.CollectableRow) (shipping.Option, error) {
	var o shipping.Option
	err := row.Scan(&o.ID, &o.Name, &o.BasePrice, &o.EstimatedDays)
	return o, err
}
