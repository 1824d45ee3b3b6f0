package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category, image
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, category, image
		FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, category, image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
		    category = EXCLUDED.category, image = EXCLUDED.image`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Upsert inserts or updates a catalog product. Used by the ingest tooling.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category, p.Image)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image)
	return p, err
}
