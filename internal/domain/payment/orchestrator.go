package payment

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

// seenCapacity sizes the replay fast-path bloom filter. The authoritative
// applied-event check lives in the order repository; the filter only saves a
// store round-trip on obvious replays, so false positives are harmless.
const (
	seenCapacity = 1_000_000
	seenFPR      = 0.001
)

// Orchestrator creates payment intents and applies provider events to orders.
type Orchestrator struct {
	orders   order.Repository
	carts    cart.Repository
	provider Provider
	lg       *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewOrchestrator creates an Orchestrator. The cart repository is used to
// clear the originating cart once payment is confirmed.
func NewOrchestrator(orders order.Repository, carts cart.Repository, provider Provider, lg *zap.Logger) *Orchestrator {
	return &Orchestrator{
		orders:   orders,
		carts:    carts,
		provider: provider,
		lg:       lg,
		now:      time.Now,
		seen:     bloom.NewWithEstimates(seenCapacity, seenFPR),
	}
}

// CreateIntent requests a payment intent for the order's frozen total and
// records the provider reference on the order. The amount is validated before
// any provider call; provider failures are wrapped in ProviderError.
func (o *Orchestrator) CreateIntent(ctx context.Context, ord *order.Order, currency string) (*Intent, error) {
	amount := ord.Totals.Total
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	minor := amount.Shift(2).Round(0).IntPart()
	intent, err := o.provider.CreateIntent(ctx, minor, currency)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	if err := o.orders.SetPaymentRef(ctx, ord.ID, intent.ProviderRef); err != nil {
		return nil, errors.Wrap(err, "record payment ref")
	}
	ord.PaymentRef = intent.ProviderRef

	return intent, nil
}

// ApplyEvent applies a provider event to its order at most once. Replays of
// an already-applied event id succeed without any state change. Unknown event
// types, events matching no order, and events conflicting with the order's
// current state are logged and acknowledged so the provider does not retry
// them.
func (o *Orchestrator) ApplyEvent(ctx context.Context, ev Event) error {
	lg := o.lg.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	// Replay fast path: the filter has no false negatives, so a miss means
	// the event is definitely new. A hit still needs the authoritative check.
	if o.testSeen(ev.ID) {
		applied, err := o.orders.IsEventApplied(ctx, ev.ID)
		if err != nil {
			return errors.Wrap(err, "check applied events")
		}
		if applied {
			lg.Debug("Replayed payment event ignored")
			return nil
		}
	}

	var apply func(*order.Order) error
	switch ev.Type {
	case EventPaymentSucceeded:
		apply = func(ord *order.Order) error {
			now := o.now()
			if err := ord.TransitionPayment(order.PaymentPaid, "provider confirmed payment", now); err != nil {
				return err
			}
			return ord.TransitionTo(order.StatusProcessing, "payment received", now)
		}
	case EventPaymentFailed:
		// The order stays pending; cancelling is a business decision, not an
		// automatic consequence of a failed payment.
		apply = func(ord *order.Order) error {
			return ord.TransitionPayment(order.PaymentFailed, "provider reported failure", o.now())
		}
	default:
		lg.Info("Ignoring unknown payment event type")
		return nil
	}

	ord, err := o.orders.GetByPaymentRef(ctx, ev.PaymentRef)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// Orphan event: no order will ever match it, so retrying is
			// pointless. Acknowledge and keep only the log trail.
			lg.Warn("Payment event matches no order", zap.String("payment_ref", ev.PaymentRef))
			return nil
		}
		return errors.Wrap(err, "lookup order by payment ref")
	}

	applied, err := o.orders.ApplyEvent(ctx, ord.ID, ev.ID, ev.Type, apply)
	if err != nil {
		// An event that conflicts with the order's current state (paid after
		// cancellation, success after failure) will conflict on every retry.
		// Treat it like an orphan: keep the log trail and acknowledge.
		var tErr *order.InvalidTransitionError
		if errors.As(err, &tErr) {
			lg.Warn("Payment event conflicts with order state",
				zap.String("order_id", ord.ID),
				zap.Error(tErr),
			)
			return nil
		}
		return errors.Wrapf(err, "apply event to order %s", ord.ID)
	}
	o.markSeen(ev.ID)
	if !applied {
		lg.Debug("Replayed payment event ignored", zap.String("order_id", ord.ID))
		return nil
	}

	lg.Info("Payment event applied",
		zap.String("order_id", ord.ID),
		zap.String("order_number", ord.Number),
	)

	// Payment confirmed: the customer's cart has served its purpose. A clear
	// failure here must not fail the webhook, the payment already landed.
	if ev.Type == EventPaymentSucceeded && ord.CartID != "" {
		if err := o.carts.Delete(ctx, ord.CartID); err != nil {
			lg.Warn("Failed to clear cart after payment", zap.String("cart_id", ord.CartID), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) testSeen(eventID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen.TestString(eventID)
}

func (o *Orchestrator) markSeen(eventID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen.AddString(eventID)
}
