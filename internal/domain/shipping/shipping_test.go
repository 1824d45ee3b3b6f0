package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOptionRepo struct {
	byID map[string]*Option
}

func (m *mockOptionRepo) List(_ context.Context) ([]Option, error) {
	out := make([]Option, 0, len(m.byID))
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOptionRepo) GetByID(_ context.Context, id string) (*Option, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrOptionNotFound
	}
	return o, nil
}

func newResolver(opts ...Option) *Resolver {
	byID := make(map[string]*Option, len(opts))
	for i := range opts {
		byID[opts[i].ID] = &opts[i]
	}
	r := NewResolver(&mockOptionRepo{byID: byID})
	// Monday.
	r.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	return r
}

func standardOption() Option {
	return Option{
		ID:            "standard",
		Name:          "Standard Shipping",
		BasePrice:     decimal.RequireFromString("5.99"),
		EstimatedDays: "5 business days",
	}
}

func TestResolve_UnknownOption(t *testing.T) {
	r := newResolver(standardOption())

	_, err := r.Resolve(context.Background(), "teleport", 1)
	require.ErrorIs(t, err, ErrOptionNotFound)
}

func TestResolve_SurchargeBoundaries(t *testing.T) {
	r := newResolver(standardOption())

	tests := []struct {
		count int
		want  string
	}{
		{1, "5.99"},
		{5, "5.99"},  // exactly 5 units: no surcharge
		{6, "7.99"},  // one block
		{10, "7.99"}, // still one block
		{11, "9.99"}, // two blocks
		{16, "11.99"},
	}
	for _, tt := range tests {
		q, err := r.Resolve(context.Background(), "standard", tt.count)
		require.NoError(t, err, "count=%d", tt.count)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(q.Cost),
			"count=%d cost=%s want=%s", tt.count, q.Cost, tt.want)
	}
}

func TestResolve_DeliveryDateSkipsWeekends(t *testing.T) {
	r := newResolver(standardOption())

	// Monday 2025-06-02 + 5 business days = Monday 2025-06-09.
	q, err := r.Resolve(context.Background(), "standard", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC), q.EstimatedDelivery)
}

func TestResolve_SingleBusinessDay(t *testing.T) {
	opt := standardOption()
	opt.ID = "express"
	opt.EstimatedDays = "1 business day"
	r := newResolver(opt)

	// Friday + 1 business day = Monday.
	r.now = func() time.Time { return time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC) }

	q, err := r.Resolve(context.Background(), "express", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC), q.EstimatedDelivery)
}

func TestResolve_BadDescriptor(t *testing.T) {
	opt := standardOption()
	opt.EstimatedDays = "soonish"
	r := newResolver(opt)

	_, err := r.Resolve(context.Background(), "standard", 1)
	require.Error(t, err)
}

func TestAddBusinessDays_StartingOnWeekend(t *testing.T) {
	// Saturday + 1 business day = Monday.
	sat := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	got := addBusinessDays(sat, 1)
	assert.Equal(t, time.Monday, got.Weekday())
}
