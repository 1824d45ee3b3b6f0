// Package payment creates payment intents against the external provider and
// consumes its asynchronous events to drive order status, exactly once per
// event id.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Event types delivered by the provider's webhook. Anything else is
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidAmount is returned before any provider call when the intent
// amount is not positive.
var ErrInvalidAmount = errors.New("payment amount must be positive")

// ProviderError wraps a failure (or timeout) from the external payment
// provider. Callers may retry; the provider's detail is kept for logs and
// never shown to clients verbatim.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Intent is the provider-side payment reference plus the client-usable secret.
type Intent struct {
	ProviderRef  string
	ClientSecret string
}

// Provider is the external payment service. Amounts are in the currency's
// minor units (cents).
type Provider interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string) (*Intent, error)
}

// Event is an asynchronous notification from the provider. Delivery is
// at-least-once; duplicates are ordinary.
type Event struct {
	ID         string
	Type       string
	PaymentRef string
	Payload    []byte
}
