// Package marketdata holds the latest tick per symbol and the feed's
// connectivity status for readers on any goroutine.
package marketdata

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/signal"
)

// Status is the connectivity flag surfaced to consumers.
type Status struct {
	Connected bool
	Failed    bool // retries exhausted; an explicit connect is required
	Detail    string
	Since     time.Time
}

// Snapshot is an immutable view of the store. Every symbol in a snapshot
// comes from the same published batch sequence.
type Snapshot struct {
	ticks map[string]signal.Tick
	seq   uint64
}

// Seq increments once per applied batch.
func (s *Snapshot) Seq() uint64 { return s.seq }

// Len returns the number of symbols held.
func (s *Snapshot) Len() int { return len(s.ticks) }

// Get returns the latest tick for symbol.
func (s *Snapshot) Get(symbol string) (signal.Tick, bool) {
	tk, ok := s.ticks[symbol]
	return tk, ok
}

// Symbols returns the held symbols sorted.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.ticks))
	for sym := range s.ticks {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Ticks returns a copy of all ticks keyed by symbol.
func (s *Snapshot) Ticks() map[string]signal.Tick {
	out := make(map[string]signal.Tick, len(s.ticks))
	for k, v := range s.ticks {
		out[k] = v
	}
	return out
}

// Prices returns last prices keyed by symbol.
func (s *Snapshot) Prices() map[string]float64 {
	out := make(map[string]float64, len(s.ticks))
	for k, v := range s.ticks {
		out[k] = v.Price
	}
	return out
}

// Store publishes snapshots by atomic pointer swap. Update is the single
// writer path; readers never lock.
type Store struct {
	writeMu  sync.Mutex
	snapshot atomic.Pointer[Snapshot]
	status   atomic.Pointer[Status]
}

// NewStore returns an empty store with a disconnected status.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(&Snapshot{ticks: map[string]signal.Tick{}})
	s.status.Store(&Status{Since: time.Now()})
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Get is shorthand for Snapshot().Get.
func (s *Store) Get(symbol string) (signal.Tick, bool) {
	return s.Snapshot().Get(symbol)
}

// Update merges batch into a new snapshot and publishes it in one swap.
// A tick older than the held tick for its symbol is ignored. It returns the
// number of ticks applied.
func (s *Store) Update(batch []signal.Tick) int {
	if len(batch) == 0 {
		return 0
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.snapshot.Load()
	next := make(map[string]signal.Tick, len(prev.ticks)+len(batch))
	for k, v := range prev.ticks {
		next[k] = v
	}
	applied := 0
	for _, tk := range batch {
		if tk.Symbol == "" {
			continue
		}
		if held, ok := next[tk.Symbol]; ok && held.Timestamp > tk.Timestamp {
			continue
		}
		next[tk.Symbol] = tk
		applied++
		metrics.TicksTotal.WithLabelValues(tk.Symbol).Inc()
	}
	if applied == 0 {
		return 0
	}
	s.snapshot.Store(&Snapshot{ticks: next, seq: prev.seq + 1})
	return applied
}

// Status returns the current connectivity flag.
func (s *Store) Status() Status {
	return *s.status.Load()
}

// SetStatus replaces the connectivity flag.
func (s *Store) SetStatus(st Status) {
	if st.Since.IsZero() {
		st.Since = time.Now()
	}
	s.status.Store(&st)
}

// MarketDataHandler adapts the store to a market_data subscriber.
func (s *Store) MarketDataHandler() func(payload any) error {
	return func(payload any) error {
		batch, ok := payload.([]signal.Tick)
		if !ok {
			return fmt.Errorf("unexpected market_data payload %T", payload)
		}
		s.Update(batch)
		return nil
	}
}
