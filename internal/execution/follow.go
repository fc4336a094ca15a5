package execution

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/risk"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

// Positions reports held quantity; *paper.Portfolio satisfies it.
type Positions interface {
	Position(symbol string) float64
}

// Follower places a market order for each confident signal on a quoted
// symbol. Sells are capped at the held position.
type Follower struct {
	log           zerolog.Logger
	exec          *Executor
	quotes        Quotes
	positions     Positions
	minConfidence int
	qty           float64
}

// NewFollower builds a follower. positions may be nil, in which case sell
// signals are ignored.
func NewFollower(exec *Executor, quotes Quotes, positions Positions, cfg config.Trading, log zerolog.Logger) *Follower {
	return &Follower{
		log:           log,
		exec:          exec,
		quotes:        quotes,
		positions:     positions,
		minConfidence: cfg.MinConfidence,
		qty:           cfg.OrderQty,
	}
}

// Handler consumes trading_signal payloads.
func (f *Follower) Handler() subscription.Handler {
	return func(payload any) error {
		sig, ok := payload.(signal.Signal)
		if !ok {
			return fmt.Errorf("unexpected trading_signal payload %T", payload)
		}
		_, err := f.Follow(sig)
		return err
	}
}

// Follow submits the order implied by sig. It returns false when the signal
// is skipped; risk rejections are skips, not errors.
func (f *Follower) Follow(sig signal.Signal) (bool, error) {
	if sig.Confidence < f.minConfidence || f.qty <= 0 {
		return false, nil
	}
	if _, ok := f.quotes.Get(sig.Symbol); !ok {
		f.log.Debug().Str("symbol", sig.Symbol).Msg("no quote for signal symbol, skipping")
		return false, nil
	}

	qty := f.qty
	if sig.Type == signal.Sell {
		if f.positions == nil {
			return false, nil
		}
		qty = math.Min(qty, f.positions.Position(sig.Symbol))
		if qty <= 0 {
			return false, nil
		}
	}

	order, err := f.exec.Submit(signal.Order{Symbol: sig.Symbol, Side: sig.Type, Qty: qty})
	if errors.Is(err, risk.ErrNotional) || errors.Is(err, risk.ErrQuantity) {
		f.log.Info().Err(err).Str("signal", sig.ID).Msg("signal order blocked by risk limits")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	f.log.Info().Str("signal", sig.ID).Str("order", order.ID).Int("confidence", sig.Confidence).Msg("following signal")
	return true, nil
}
