package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/signal"
)

// SimulatedDialer stands in for a socket: after ConnectDelay it streams the
// generator's batches as market_data envelopes and answers order_submit
// messages with fills.
type SimulatedDialer struct {
	Generator    *TickGenerator
	ConnectDelay time.Duration
	Log          zerolog.Logger
}

// Dial waits out the simulated handshake and starts the tick stream.
func (d *SimulatedDialer) Dial(ctx context.Context, cb Callbacks) (Conn, error) {
	if d.Generator == nil {
		return nil, errors.New("simulated feed requires a tick generator")
	}
	if d.ConnectDelay > 0 {
		timer := time.NewTimer(d.ConnectDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &simConn{
		gen:    d.Generator,
		log:    d.Log,
		cb:     cb,
		cancel: cancel,
	}
	go c.stream(runCtx)
	d.Log.Info().Strs("symbols", d.Generator.Symbols()).Dur("interval", d.Generator.Interval()).Msg("simulated feed connected")
	return c, nil
}

type simConn struct {
	gen    *TickGenerator
	log    zerolog.Logger
	cb     Callbacks
	cancel context.CancelFunc
	closed atomic.Bool
}

func (c *simConn) stream(ctx context.Context) {
	_ = c.gen.Run(ctx, func(batch []signal.Tick) {
		c.deliver(signal.EventMarketData, batch)
	})
}

func (c *simConn) deliver(t signal.EventType, data any) {
	env, err := signal.NewEnvelope(t, data)
	if err != nil {
		c.log.Warn().Err(err).Str("type", string(t)).Msg("failed to encode simulated message")
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to encode simulated envelope")
		return
	}
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(raw)
	}
}

// Send logs the message and acknowledges orders with a synthetic fill.
func (c *simConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("simulated connection closed")
	}
	c.log.Debug().RawJSON("message", data).Msg("simulated feed: message would be sent")

	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != signal.EventOrderSubmit {
		return nil
	}
	var order signal.Order
	if err := json.Unmarshal(env.Data, &order); err != nil {
		c.log.Warn().Err(err).Msg("simulated feed: bad order payload")
		return nil
	}
	c.deliver(signal.EventOrderUpdate, c.fill(order))
	return nil
}

func (c *simConn) fill(order signal.Order) signal.OrderUpdate {
	update := signal.OrderUpdate{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Timestamp: time.Now().UnixMilli(),
	}
	price := order.Price
	if last, ok := c.gen.Last(order.Symbol); ok {
		if price <= 0 {
			price = last.Ask
			if order.Side == signal.Sell {
				price = last.Bid
			}
		}
	} else if price <= 0 {
		update.Status = signal.OrderRejected
		update.Reason = "no quote for " + order.Symbol
		return update
	}
	if order.Qty <= 0 {
		update.Status = signal.OrderRejected
		update.Reason = "quantity must be positive"
		return update
	}
	update.Status = signal.OrderFilled
	update.FilledQty = order.Qty
	update.FillPrice = price
	return update
}

// Close stops the stream. It does not wait for the generator goroutine so
// it is safe to call from a subscriber running on that goroutine.
func (c *simConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
	}
	return nil
}
