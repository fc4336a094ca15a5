// Package signalfeed produces trading signals on a cadence and keeps the
// most recent ones in a bounded, most-recent-first buffer.
package signalfeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

const (
	defaultInterval    = 8 * time.Second
	defaultMaxStandard = 10
	defaultMaxPremium  = 20
)

// Feed owns the signal buffer. Push is the only writer; readers take
// Snapshot from any goroutine and never see a half-applied insert.
type Feed struct {
	log         zerolog.Logger
	interval    time.Duration
	maxStandard int
	maxPremium  int
	source      func() signal.Signal
	registry    *subscription.Registry

	live    atomic.Bool
	premium atomic.Bool

	writeMu sync.Mutex
	buf     atomic.Pointer[[]signal.Signal]
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithSource replaces the random generator.
func WithSource(fn func() signal.Signal) Option {
	return func(f *Feed) {
		if fn != nil {
			f.source = fn
		}
	}
}

// WithRegistry publishes every inserted signal as a trading_signal event.
func WithRegistry(r *subscription.Registry) Option {
	return func(f *Feed) { f.registry = r }
}

// New builds a feed from cfg. The feed starts live unless cfg.Paused.
func New(cfg config.Signals, log zerolog.Logger, opts ...Option) *Feed {
	f := &Feed{
		log:         log,
		interval:    cfg.Interval(),
		maxStandard: cfg.MaxStandard,
		maxPremium:  cfg.MaxPremium,
	}
	if f.interval <= 0 {
		f.interval = defaultInterval
	}
	if f.maxStandard <= 0 {
		f.maxStandard = defaultMaxStandard
	}
	if f.maxPremium <= 0 {
		f.maxPremium = defaultMaxPremium
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.source == nil {
		f.source = NewGenerator(nil).Next
	}
	empty := []signal.Signal{}
	f.buf.Store(&empty)
	f.live.Store(!cfg.Paused)
	f.premium.Store(cfg.Premium)
	return f
}

// Live reports whether Run generates signals.
func (f *Feed) Live() bool { return f.live.Load() }

// SetLive pauses or resumes generation. Pausing keeps the buffer.
func (f *Feed) SetLive(live bool) {
	if f.live.Swap(live) != live {
		f.log.Info().Bool("live", live).Msg("signal feed toggled")
	}
}

// Premium reports whether the larger capacity applies.
func (f *Feed) Premium() bool { return f.premium.Load() }

// SetPremium switches capacity tiers. Dropping to standard truncates the
// buffer right away.
func (f *Feed) SetPremium(premium bool) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.premium.Swap(premium) == premium {
		return
	}
	cur := *f.buf.Load()
	if limit := f.capacity(); len(cur) > limit {
		next := make([]signal.Signal, limit)
		copy(next, cur)
		f.buf.Store(&next)
	}
}

// Capacity returns the current buffer bound.
func (f *Feed) Capacity() int { return f.capacity() }

func (f *Feed) capacity() int {
	if f.premium.Load() {
		return f.maxPremium
	}
	return f.maxStandard
}

// Snapshot returns the buffer, newest first.
func (f *Feed) Snapshot() []signal.Signal {
	cur := *f.buf.Load()
	out := make([]signal.Signal, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of buffered signals.
func (f *Feed) Len() int { return len(*f.buf.Load()) }

// Push prepends sig and drops the oldest entries beyond capacity in one
// replace, then notifies trading_signal subscribers.
func (f *Feed) Push(sig signal.Signal) {
	f.writeMu.Lock()
	cur := *f.buf.Load()
	n := min(len(cur)+1, f.capacity())
	next := make([]signal.Signal, n)
	next[0] = sig
	copy(next[1:], cur)
	f.buf.Store(&next)
	f.writeMu.Unlock()

	metrics.SignalsTotal.WithLabelValues(string(sig.Category)).Inc()
	f.log.Debug().Str("id", sig.ID).Str("symbol", sig.Symbol).Str("type", string(sig.Type)).Int("confidence", sig.Confidence).Msg("signal generated")
	if f.registry != nil {
		f.registry.Notify(signal.EventTradingSignal, sig)
	}
}

// Emit generates and pushes one signal when live.
func (f *Feed) Emit() (signal.Signal, bool) {
	if !f.live.Load() {
		return signal.Signal{}, false
	}
	sig := f.source()
	f.Push(sig)
	return sig, true
}

// Run emits one signal per interval until ctx is canceled.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.log.Info().Dur("interval", f.interval).Int("capacity", f.Capacity()).Msg("signal feed started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Emit()
		}
	}
}
