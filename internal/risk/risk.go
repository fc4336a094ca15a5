// Package risk holds the per-order guard-rails applied before submission.
package risk

import (
	"errors"
	"fmt"

	"marketfeed-go/internal/config"
)

var (
	ErrNotional = errors.New("notional limit exceeded")
	ErrQuantity = errors.New("quantity limit exceeded")
)

// Limits caps a single order. Zero disables a limit.
type Limits struct {
	MaxNotionalPerTrade float64
	MaxOrderQty         float64
}

// FromConfig copies the configured limits.
func FromConfig(cfg config.Risk) Limits {
	return Limits{MaxNotionalPerTrade: cfg.MaxNotionalPerTrade, MaxOrderQty: cfg.MaxOrderQty}
}

// Allow reports whether notional fits the per-trade cap.
func (l Limits) Allow(notional float64) bool {
	return l.MaxNotionalPerTrade <= 0 || notional <= l.MaxNotionalPerTrade
}

// Check validates qty at the reference price.
func (l Limits) Check(qty, price float64) error {
	if l.MaxOrderQty > 0 && qty > l.MaxOrderQty {
		return fmt.Errorf("%w: qty %g > %g", ErrQuantity, qty, l.MaxOrderQty)
	}
	if notional := qty * price; !l.Allow(notional) {
		return fmt.Errorf("%w: %.2f > %.2f", ErrNotional, notional, l.MaxNotionalPerTrade)
	}
	return nil
}
