// Package execution validates orders and submits them over the feed connection.
package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/risk"
	"marketfeed-go/internal/signal"
)

// ErrNoQuote is returned for a market order on a symbol without a tick.
var ErrNoQuote = errors.New("no quote for market order")

// Sender writes an outbound message; *exchange.Manager satisfies it.
type Sender interface {
	Send(message any) error
}

// Quotes looks up the latest tick; *marketdata.Store satisfies it.
type Quotes interface {
	Get(symbol string) (signal.Tick, bool)
}

// Executor turns orders into order_submit envelopes.
type Executor struct {
	log    zerolog.Logger
	sender Sender
	quotes Quotes
	limits risk.Limits
}

// NewExecutor wires an executor to the outbound connection and quote source.
func NewExecutor(sender Sender, quotes Quotes, limits risk.Limits, log zerolog.Logger) *Executor {
	return &Executor{log: log, sender: sender, quotes: quotes, limits: limits}
}

// Submit checks order against the risk limits and sends it. The returned
// order carries the assigned id.
func (e *Executor) Submit(order signal.Order) (signal.Order, error) {
	order.Symbol = strings.TrimSpace(order.Symbol)
	if order.Symbol == "" {
		return order, errors.New("order symbol is required")
	}
	if order.Side != signal.Buy && order.Side != signal.Sell {
		return order, fmt.Errorf("unknown order side %q", order.Side)
	}
	if order.Qty <= 0 {
		return order, errors.New("quantity must be positive")
	}

	ref := order.Price
	if ref <= 0 {
		tk, ok := e.quotes.Get(order.Symbol)
		if !ok {
			return order, fmt.Errorf("%w: %s", ErrNoQuote, order.Symbol)
		}
		ref = tk.Ask
		if order.Side == signal.Sell {
			ref = tk.Bid
		}
	}
	if err := e.limits.Check(order.Qty, ref); err != nil {
		return order, err
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	env, err := signal.NewEnvelope(signal.EventOrderSubmit, order)
	if err != nil {
		return order, fmt.Errorf("encode order: %w", err)
	}
	if err := e.sender.Send(env); err != nil {
		return order, fmt.Errorf("submit order %s: %w", order.ID, err)
	}

	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	e.log.Info().Str("id", order.ID).Str("sym", order.Symbol).Str("side", string(order.Side)).Float64("qty", order.Qty).Float64("px", order.Price).Float64("ref", ref).Msg("submit order")
	return order, nil
}
