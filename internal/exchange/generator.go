package exchange

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"marketfeed-go/internal/signal"
)

const (
	defaultTickInterval = 2 * time.Second
	minTickPrice        = 0.01
	quoteHalfSpread     = 0.02
)

// DefaultSeeds returns the opening quotes for the demo symbol set.
func DefaultSeeds() []signal.Tick {
	return []signal.Tick{
		{Symbol: "AAPL", Price: 175.43, Change: 2.15, ChangePercent: 1.24, Volume: "45.2M", High: 177.25, Low: 173.8, Open: 174.2},
		{Symbol: "GOOGL", Price: 2847.32, Change: -12.45, ChangePercent: -0.44, Volume: "1.2M", High: 2865.0, Low: 2840.15, Open: 2859.77},
		{Symbol: "TSLA", Price: 248.67, Change: 5.23, ChangePercent: 2.15, Volume: "28.7M", High: 251.45, Low: 243.2, Open: 243.44},
		{Symbol: "MSFT", Price: 378.92, Change: 1.87, ChangePercent: 0.5, Volume: "22.1M", High: 380.25, Low: 376.8, Open: 377.05},
		{Symbol: "NVDA", Price: 445.78, Change: 8.92, ChangePercent: 2.04, Volume: "35.6M", High: 448.5, Low: 436.86, Open: 436.86},
	}
}

// SeedsFor returns the default seeds for symbols, in that order. Symbols
// without a default quote open at 100. An empty list selects every default.
func SeedsFor(symbols []string) []signal.Tick {
	defaults := DefaultSeeds()
	if len(symbols) == 0 {
		return defaults
	}
	bySymbol := make(map[string]signal.Tick, len(defaults))
	for _, tk := range defaults {
		bySymbol[tk.Symbol] = tk
	}
	out := make([]signal.Tick, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if tk, ok := bySymbol[sym]; ok {
			out = append(out, tk)
			continue
		}
		out = append(out, signal.Tick{Symbol: sym, Price: 100, Open: 100, High: 100, Low: 100, Volume: "0"})
	}
	return out
}

// TickGenerator random-walks a fixed symbol set and emits one batch per
// cycle. The symbol set cannot change after construction.
type TickGenerator struct {
	interval time.Duration
	now      func() time.Time
	step     func() float64

	mu    sync.Mutex
	ticks []signal.Tick
	index map[string]int
}

// GeneratorOption configures TickGenerator construction parameters.
type GeneratorOption func(*TickGenerator)

// WithRand drives price steps from r.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *TickGenerator) {
		if r != nil {
			g.step = func() float64 { return r.Float64()*2 - 1 }
		}
	}
}

// WithStep replaces the price step source; values should lie in (-1, 1).
func WithStep(step func() float64) GeneratorOption {
	return func(g *TickGenerator) {
		if step != nil {
			g.step = step
		}
	}
}

// WithNow overrides the clock stamped on ticks.
func WithNow(now func() time.Time) GeneratorOption {
	return func(g *TickGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewTickGenerator seeds the generator. Seeds without a symbol or positive
// price are skipped; duplicate symbols keep the first seed.
func NewTickGenerator(seeds []signal.Tick, interval time.Duration, opts ...GeneratorOption) *TickGenerator {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	g := &TickGenerator{
		interval: interval,
		now:      time.Now,
		step:     func() float64 { return rand.Float64()*2 - 1 },
		index:    make(map[string]int, len(seeds)),
	}
	for _, opt := range opts {
		opt(g)
	}
	stamp := g.now().UnixMilli()
	for _, seed := range seeds {
		seed.Symbol = strings.TrimSpace(seed.Symbol)
		if seed.Symbol == "" || seed.Price <= 0 {
			continue
		}
		if _, dup := g.index[seed.Symbol]; dup {
			continue
		}
		if seed.Open <= 0 {
			seed.Open = seed.Price
		}
		seed.High = math.Max(seed.High, seed.Price)
		if seed.Low <= 0 || seed.Low > seed.Price {
			seed.Low = seed.Price
		}
		seed.Bid = seed.Price - quoteHalfSpread
		seed.Ask = seed.Price + quoteHalfSpread
		seed.Spread = seed.Ask - seed.Bid
		seed.Timestamp = stamp
		g.index[seed.Symbol] = len(g.ticks)
		g.ticks = append(g.ticks, seed)
	}
	return g
}

// Interval returns the emission cadence.
func (g *TickGenerator) Interval() time.Duration { return g.interval }

// Symbols returns the tracked symbols in seed order.
func (g *TickGenerator) Symbols() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.ticks))
	for i, tk := range g.ticks {
		out[i] = tk.Symbol
	}
	return out
}

// Current returns a copy of the latest batch.
func (g *TickGenerator) Current() []signal.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]signal.Tick, len(g.ticks))
	copy(out, g.ticks)
	return out
}

// Last returns the latest tick for symbol.
func (g *TickGenerator) Last(symbol string) (signal.Tick, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index[symbol]
	if !ok {
		return signal.Tick{}, false
	}
	return g.ticks[i], true
}

// Next advances every symbol by one step and returns the whole batch with
// a single shared timestamp.
func (g *TickGenerator) Next() []signal.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()

	stamp := g.now().UnixMilli()
	out := make([]signal.Tick, len(g.ticks))
	for i, cur := range g.ticks {
		price := math.Max(minTickPrice, cur.Price+g.step())
		change := price - cur.Open
		next := cur
		next.Price = price
		next.Change = change
		next.ChangePercent = change / cur.Open * 100
		next.High = math.Max(cur.High, price)
		next.Low = math.Min(cur.Low, price)
		next.Bid = price - quoteHalfSpread
		next.Ask = price + quoteHalfSpread
		next.Spread = next.Ask - next.Bid
		next.Timestamp = stamp
		g.ticks[i] = next
		out[i] = next
	}
	return out
}

// Run emits a batch every interval until ctx is canceled. emit runs on the
// generator goroutine.
func (g *TickGenerator) Run(ctx context.Context, emit func([]signal.Tick)) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emit(g.Next())
		}
	}
}
