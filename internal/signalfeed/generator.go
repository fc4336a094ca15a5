package signalfeed

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketfeed-go/internal/signal"
)

var (
	symbols    = []string{"EUR/USD", "GBP/USD", "USD/JPY", "BTC/USD", "ETH/USD", "AAPL", "TSLA", "GOLD"}
	categories = []signal.Category{signal.CategoryForex, signal.CategoryCrypto, signal.CategoryStocks, signal.CategoryCommodities}
	priorities = []signal.Priority{signal.PriorityHigh, signal.PriorityMedium, signal.PriorityLow}
	sides      = []signal.Side{signal.Buy, signal.Sell}
	timeframes = []string{"1H", "4H", "1D"}
	analyses   = []string{
		"Strong bullish momentum with RSI oversold recovery",
		"Bearish divergence on MACD, potential correction",
		"Breaking key resistance level with high volume",
		"Support level holding, expecting bounce",
		"Trend continuation pattern confirmed",
	}
)

const (
	minSignalPrice   = 100
	signalPriceRange = 1000
	minConfidence    = 70
	confidenceRange  = 30
	riskBand         = 0.02
)

// Generator draws random signals. Symbol and category are drawn
// independently, so a signal's category does not describe its symbol.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
	id  func() string
}

// NewGenerator returns a generator seeded from r, or from the global source
// when r is nil.
func NewGenerator(r *rand.Rand) *Generator {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rnd: r, now: time.Now, id: uuid.NewString}
}

// Next returns one new signal.
func (g *Generator) Next() signal.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()

	side := pick(g.rnd, sides)
	raw := decimal.NewFromFloat(g.rnd.Float64()*signalPriceRange + minSignalPrice)
	up := decimal.NewFromFloat(1 + riskBand)
	down := decimal.NewFromFloat(1 - riskBand)
	target, stop := raw.Mul(up), raw.Mul(down)
	if side == signal.Sell {
		target, stop = raw.Mul(down), raw.Mul(up)
	}

	return signal.Signal{
		ID:          g.id(),
		Symbol:      pick(g.rnd, symbols),
		Type:        side,
		Price:       raw.Round(2).InexactFloat64(),
		TargetPrice: target.Round(2).InexactFloat64(),
		StopLoss:    stop.Round(2).InexactFloat64(),
		Confidence:  minConfidence + g.rnd.IntN(confidenceRange),
		Timeframe:   pick(g.rnd, timeframes),
		Analysis:    pick(g.rnd, analyses),
		Timestamp:   g.now(),
		Priority:    pick(g.rnd, priorities),
		Category:    pick(g.rnd, categories),
	}
}

func pick[T any](r *rand.Rand, from []T) T {
	return from[r.IntN(len(from))]
}
