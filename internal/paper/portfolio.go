// Package paper keeps a virtual portfolio fed by order fills and marked to
// the latest ticks.
package paper

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

const epsilon = 1e-9

var (
	ErrInsufficientCash     = errors.New("insufficient cash for buy")
	ErrInsufficientPosition = errors.New("insufficient position to sell")
	ErrPositionLimit        = errors.New("position limit exceeded")
)

type positionState struct {
	Qty     float64
	AvgCost float64
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         float64 `json:"qty"`
	AvgCost     float64 `json:"avgCost"`
	Mark        float64 `json:"mark"`
	MarketValue float64 `json:"marketValue"`
	Unrealized  float64 `json:"unrealized"`
}

// Snapshot is the portfolio_update payload.
type Snapshot struct {
	Cash        float64                     `json:"cash"`
	RealizedPnL float64                     `json:"realizedPnl"`
	Equity      float64                     `json:"equity"`
	Positions   map[string]PositionSnapshot `json:"positions"`
}

// Portfolio tracks virtual cash, realized PnL and per-symbol positions.
type Portfolio struct {
	log      zerolog.Logger
	registry *subscription.Registry

	mu                   sync.Mutex
	startingCash         float64
	cash                 float64
	realizedPnL          float64
	maxPositionPerSymbol float64
	positions            map[string]positionState
	marks                map[string]float64
	applied              map[string]bool
}

// NewPortfolio starts with cfg.StartingCash. When registry is non-nil every
// change is published as a portfolio_update event.
func NewPortfolio(cfg config.Paper, registry *subscription.Registry, log zerolog.Logger) *Portfolio {
	return &Portfolio{
		log:                  log,
		registry:             registry,
		startingCash:         cfg.StartingCash,
		cash:                 cfg.StartingCash,
		maxPositionPerSymbol: cfg.MaxPositionPerSymbol,
		positions:            make(map[string]positionState),
		marks:                make(map[string]float64),
		applied:              make(map[string]bool),
	}
}

// StartingCash returns the initial bankroll.
func (p *Portfolio) StartingCash() float64 { return p.startingCash }

// Apply books a FILLED order update. Other statuses and repeated order ids
// are ignored.
func (p *Portfolio) Apply(up signal.OrderUpdate) error {
	if up.Status != signal.OrderFilled {
		return nil
	}
	p.mu.Lock()
	if up.OrderID != "" && p.applied[up.OrderID] {
		p.mu.Unlock()
		return nil
	}
	err := p.fillLocked(up.Symbol, up.Side, up.FilledQty, up.FillPrice)
	if err == nil && up.OrderID != "" {
		p.applied[up.OrderID] = true
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("apply fill %s: %w", up.OrderID, err)
	}
	p.log.Info().Str("order", up.OrderID).Str("sym", up.Symbol).Str("side", string(up.Side)).Float64("qty", up.FilledQty).Float64("px", up.FillPrice).Float64("cash", snap.Cash).Msg("paper fill")
	p.publish(snap)
	return nil
}

func (p *Portfolio) fillLocked(symbol string, side signal.Side, qty, price float64) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if price <= 0 {
		return errors.New("price must be positive")
	}

	state := p.positions[symbol]
	notional := qty * price

	switch side {
	case signal.Buy:
		if notional > p.cash+epsilon {
			return ErrInsufficientCash
		}
		newQty := state.Qty + qty
		if p.maxPositionPerSymbol > 0 && newQty > p.maxPositionPerSymbol+epsilon {
			return ErrPositionLimit
		}
		p.cash -= notional
		p.positions[symbol] = positionState{Qty: newQty, AvgCost: (state.AvgCost*state.Qty + notional) / newQty}

	case signal.Sell:
		if state.Qty <= 0 || state.Qty+epsilon < qty {
			return ErrInsufficientPosition
		}
		p.realizedPnL += (price - state.AvgCost) * qty
		p.cash += notional
		if newQty := state.Qty - qty; newQty <= epsilon {
			delete(p.positions, symbol)
		} else {
			p.positions[symbol] = positionState{Qty: newQty, AvgCost: state.AvgCost}
		}

	default:
		return fmt.Errorf("unknown order side %q", side)
	}
	return nil
}

// Mark records the latest prices. A portfolio_update is published only when
// a held position was re-marked.
func (p *Portfolio) Mark(ticks []signal.Tick) {
	p.mu.Lock()
	held := false
	for _, tk := range ticks {
		if tk.Price <= 0 {
			continue
		}
		p.marks[tk.Symbol] = tk.Price
		if _, ok := p.positions[tk.Symbol]; ok {
			held = true
		}
	}
	if !held {
		p.mu.Unlock()
		return
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.publish(snap)
}

func (p *Portfolio) publish(snap Snapshot) {
	if p.registry != nil {
		p.registry.Notify(signal.EventPortfolioUpdate, snap)
	}
}

// Snapshot returns balances marked at the latest known prices.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Portfolio) snapshotLocked() Snapshot {
	positions := make(map[string]PositionSnapshot, len(p.positions))
	equity := p.cash
	for sym, pos := range p.positions {
		mark := p.marks[sym]
		ps := PositionSnapshot{Qty: pos.Qty, AvgCost: pos.AvgCost, Mark: mark}
		if mark > 0 {
			ps.MarketValue = pos.Qty * mark
			ps.Unrealized = (mark - pos.AvgCost) * pos.Qty
		}
		positions[sym] = ps
		equity += ps.MarketValue
	}
	return Snapshot{
		Cash:        p.cash,
		RealizedPnL: p.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new longs.
func (p *Portfolio) AvailableCash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Position returns the current position size for symbol.
func (p *Portfolio) Position(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realizedPnL
}

// OrderUpdateHandler applies order_update payloads.
func (p *Portfolio) OrderUpdateHandler() subscription.Handler {
	return func(payload any) error {
		up, ok := payload.(signal.OrderUpdate)
		if !ok {
			return fmt.Errorf("unexpected order_update payload %T", payload)
		}
		return p.Apply(up)
	}
}

// MarketDataHandler marks positions from market_data payloads.
func (p *Portfolio) MarketDataHandler() subscription.Handler {
	return func(payload any) error {
		ticks, ok := payload.([]signal.Tick)
		if !ok {
			return fmt.Errorf("unexpected market_data payload %T", payload)
		}
		p.Mark(ticks)
		return nil
	}
}
