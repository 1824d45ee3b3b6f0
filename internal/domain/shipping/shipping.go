// Package shipping resolves a shipping option selection into a concrete cost
// and an estimated delivery date.
package shipping

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrOptionNotFound is returned when a shipping option id is unknown.
var ErrOptionNotFound = errors.New("shipping option not found")

// Option is a shipping method from the reference catalog. EstimatedDays is a
// human-readable descriptor such as "5 business days".
type Option struct {
	ID            string
	Name          string
	BasePrice     decimal.Decimal
	EstimatedDays string
}

// Repository defines read operations for the shipping option catalog.
type Repository interface {
	List(ctx context.Context) ([]Option, error)
	GetByID(ctx context.Context, id string) (*Option, error)
}

// Quote is the resolved cost and delivery estimate for a shipping selection.
type Quote struct {
	OptionID          string          `json:"optionId"`
	OptionName        string          `json:"optionName"`
	Cost              decimal.Decimal `json:"cost"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
}

// blockSurcharge is added to the base price per complete 5-unit block beyond
// the first 5 units.
var blockSurcharge = decimal.RequireFromString("2.00")

// Resolver computes shipping quotes from the option catalog.
type Resolver struct {
	options Repository
	now     func() time.Time
}

// NewResolver creates a Resolver backed by the given option repository.
func NewResolver(options Repository) *Resolver {
	return &Resolver{options: options, now: time.Now}
}

// Resolve looks up the option and returns its cost for the given total unit
// count plus the estimated delivery date. It returns ErrOptionNotFound when
// the id is unknown.
func (r *Resolver) Resolve(ctx context.Context, optionID string, itemCount int) (*Quote, error) {
	opt, err := r.options.GetByID(ctx, optionID)
	if err != nil {
		if errors.Is(err, ErrOptionNotFound) {
			return nil, ErrOptionNotFound
		}
		return nil, errors.Wrap(err, "lookup shipping option")
	}

	cost := opt.BasePrice.Add(blockSurcharge.Mul(decimal.NewFromInt(int64(surchargeBlocks(itemCount)))))

	days, err := parseBusinessDays(opt.EstimatedDays)
	if err != nil {
		return nil, errors.Wrapf(err, "option %q", optionID)
	}

	return &Quote{
		OptionID:          opt.ID,
		OptionName:        opt.Name,
		Cost:              cost.Round(2),
		EstimatedDelivery: addBusinessDays(r.now(), days),
	}, nil
}

// surchargeBlocks returns the number of complete 5-unit blocks beyond the
// first 5 units: 5 units -> 0, 6 -> 1, 10 -> 1, 11 -> 2.
func surchargeBlocks(itemCount int) int {
	if itemCount <= 5 {
		return 0
	}
	return (itemCount - 1) / 5
}

// parseBusinessDays extracts the leading day count from descriptors like
// "5 business days" or "1 business day".
func parseBusinessDays(descriptor string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(descriptor))
	if len(fields) == 0 {
		return 0, errors.Errorf("empty delivery descriptor")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid delivery descriptor %q", descriptor)
	}
	return n, nil
}

// addBusinessDays walks forward one calendar day at a time from the given
// date, counting only weekdays, until the required number of business days
// has elapsed. Saturdays and Sundays are skipped; no holiday calendar.
func addBusinessDays(from time.Time, days int) time.Time {
	d := from
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return d
}
