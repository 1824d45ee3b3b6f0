package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, number, cart_id, items, shipping, billing, totals, status, payment_status, payment_ref, history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByNumberSQL = orderColumnsSQL + ` WHERE number = $1`

	getOrderByRefSQL = orderColumnsSQL + ` WHERE payment_ref = $1`

	getOrderForUpdateSQL = orderColumnsSQL + ` WHERE id = $1 FOR UPDATE`

	orderColumnsSQL = `SELECT id, number, cart_id, items, shipping, billing, totals, status, payment_status, payment_ref, history, created_at
		FROM orders`

	setPaymentRefSQL = `UPDATE orders SET payment_ref = $1 WHERE id = $2`

	updateOrderStatusSQL = `UPDATE orders SET status = $1, payment_status = $2, history = $3 WHERE id = $4`

	eventAppliedSQL = `SELECT EXISTS (SELECT 1 FROM payment_events WHERE event_id = $1)`

	insertEventSQL = `INSERT INTO payment_events (event_id, order_id, event_type)
		VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// applied payment-event set lives in the same database so ApplyEvent can
// mark an event applied atomically with the status transition.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Snapshot fields are serialized to JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	snap, err := marshalOrder(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.CartID, snap.items, snap.shipping, snap.billing, snap.totals,
		string(o.Status), string(o.PaymentStatus), o.PaymentRef, snap.history, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return order.ErrDuplicateNumber
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByNumber returns the order with the given external order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

// GetByPaymentRef returns the order holding the given provider reference.
func (r *OrderRepository) GetByPaymentRef(ctx context.Context, ref string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByRefSQL, ref)
}

// SetPaymentRef records the provider-side payment reference on the order.
func (r *OrderRepository) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	tag, err := r.pool.Exec(ctx, setPaymentRefSQL, ref, orderID)
	if err != nil {
		return errors.Wrapf(err, "set payment ref on order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// IsEventApplied reports whether the event id is already in the applied set.
func (r *OrderRepository) IsEventApplied(ctx context.Context, eventID string) (bool, error) {
	var applied bool
	if err := r.pool.QueryRow(ctx, eventAppliedSQL, eventID).Scan(&applied); err != nil {
		return false, errors.Wrap(err, "check applied event")
	}
	return applied, nil
}

// ApplyEvent marks the event applied and persists the apply mutation in one
// transaction. The order row is locked FOR UPDATE first, serializing
// concurrent events for the same order; the event insert's ON CONFLICT makes
// replays a no-op that still commits cleanly.
func (r *OrderRepository) ApplyEvent(ctx context.Context, orderID, eventID, eventType string, apply func(*order.Order) error) (applied bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, getOrderForUpdateSQL, orderID)
	if err != nil {
		return false, errors.Wrapf(err, "lock order %q", orderID)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, order.ErrNotFound
		}
		return false, errors.Wrapf(err, "lock order %q", orderID)
	}

	tag, err := tx.Exec(ctx, insertEventSQL, eventID, orderID, eventType)
	if err != nil {
		return false, errors.Wrapf(err, "record event %q", eventID)
	}
	if tag.RowsAffected() == 0 {
		// Already applied; commit the empty transaction.
		if err = tx.Commit(ctx); err != nil {
			return false, errors.Wrap(err, "commit tx")
		}
		return false, nil
	}

	if err = apply(o); err != nil {
		return false, err
	}

	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return false, errors.Wrap(err, "marshal history")
	}
	if _, err = tx.Exec(ctx, updateOrderStatusSQL,
		string(o.Status), string(o.PaymentStatus), historyJSON, orderID,
	); err != nil {
		return false, errors.Wrapf(err, "update order %q", orderID)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit tx")
	}
	return true, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

type orderSnapshot struct {
	items, shipping, billing, totals, history []byte
}

func marshalOrder(o *order.Order) (*orderSnapshot, error) {
	var (
		snap orderSnapshot
		err  error
	)
	if snap.items, err = json.Marshal(o.Items); err != nil {
		return nil, errors.Wrap(err, "marshal order items")
	}
	if snap.shipping, err = json.Marshal(o.Shipping); err != nil {
		return nil, errors.Wrap(err, "marshal order shipping")
	}
	if snap.billing, err = json.Marshal(o.Billing); err != nil {
		return nil, errors.Wrap(err, "marshal order billing")
	}
	if snap.totals, err = json.Marshal(o.Totals); err != nil {
		return nil, errors.Wrap(err, "marshal order totals")
	}
	if snap.history, err = json.Marshal(o.History); err != nil {
		return nil, errors.Wrap(err, "marshal order history")
	}
	return &snap, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                                         order.Order
		status, paymentStatus                     string
		items, shipping, billing, totals, history []byte
	)
	err := row.Scan(&o.ID, &o.Number, &o.CartID, &items, &shipping, &billing, &totals,
		&status, &paymentStatus, &o.PaymentRef, &history, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, errors.Wrap(err, "unmarshal order shipping")
	}
	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return nil, errors.Wrap(err, "unmarshal order billing")
	}
	if err := json.Unmarshal(totals, &o.Totals); err != nil {
		return nil, errors.Wrap(err, "unmarshal order totals")
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return nil, errors.Wrap(err, "unmarshal order history")
	}
	return &o, nil
}
