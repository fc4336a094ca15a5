package signalfeed

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

func standardConfig() config.Signals {
	return config.Signals{IntervalMs: 10, MaxStandard: 10, MaxPremium: 20}
}

func counterSource() func() signal.Signal {
	n := 0
	return func() signal.Signal {
		n++
		return signal.Signal{ID: strconv.Itoa(n), Category: signal.CategoryForex}
	}
}

func ids(sigs []signal.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.ID
	}
	return out
}

func TestEmitKeepsMostRecentFirst(t *testing.T) {
	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()))

	for i := 0; i < 15; i++ {
		_, ok := feed.Emit()
		require.True(t, ok)
	}

	assert.Equal(t, []string{"15", "14", "13", "12", "11", "10", "9", "8", "7", "6"}, ids(feed.Snapshot()))
	assert.Equal(t, 10, feed.Len())
}

func TestPausedFeedKeepsBuffer(t *testing.T) {
	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()))
	feed.Emit()
	feed.Emit()

	feed.SetLive(false)
	_, ok := feed.Emit()
	assert.False(t, ok)
	assert.Equal(t, []string{"2", "1"}, ids(feed.Snapshot()))

	feed.SetLive(true)
	sig, ok := feed.Emit()
	require.True(t, ok)
	assert.Equal(t, "3", sig.ID)
}

func TestStartsPausedFromConfig(t *testing.T) {
	cfg := standardConfig()
	cfg.Paused = true
	feed := New(cfg, zerolog.Nop())
	assert.False(t, feed.Live())
	_, ok := feed.Emit()
	assert.False(t, ok)
}

func TestPremiumCapacity(t *testing.T) {
	cfg := standardConfig()
	cfg.Premium = true
	feed := New(cfg, zerolog.Nop(), WithSource(counterSource()))
	assert.Equal(t, 20, feed.Capacity())

	for i := 0; i < 25; i++ {
		feed.Emit()
	}
	require.Equal(t, 20, feed.Len())

	feed.SetPremium(false)
	assert.Equal(t, 10, feed.Capacity())
	assert.Equal(t, []string{"25", "24", "23", "22", "21", "20", "19", "18", "17", "16"}, ids(feed.Snapshot()))

	feed.SetPremium(true)
	assert.Equal(t, 10, feed.Len(), "raising capacity does not restore evicted signals")
	feed.Emit()
	assert.Equal(t, 11, feed.Len())
}

func TestDefaultsApplied(t *testing.T) {
	feed := New(config.Signals{}, zerolog.Nop())
	assert.Equal(t, defaultMaxStandard, feed.Capacity())
	assert.Equal(t, defaultInterval, feed.interval)
	assert.True(t, feed.Live())
}

func TestSnapshotIsACopy(t *testing.T) {
	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()))
	feed.Emit()
	snap := feed.Snapshot()
	snap[0].ID = "mutated"
	assert.Equal(t, "1", feed.Snapshot()[0].ID)
}

func TestPushNotifiesSubscribers(t *testing.T) {
	reg := subscription.NewRegistry(zerolog.Nop())
	var got []string
	reg.Subscribe(signal.EventTradingSignal, func(payload any) error {
		got = append(got, payload.(signal.Signal).ID)
		return nil
	})

	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()), WithRegistry(reg))
	feed.Emit()
	feed.Push(signal.Signal{ID: "manual"})

	assert.Equal(t, []string{"1", "manual"}, got)
}

func TestConcurrentReadersSeeWholeInserts(t *testing.T) {
	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errs := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				snap := feed.Snapshot()
				if len(snap) > 10 {
					errs <- "buffer exceeded capacity"
					return
				}
				for i := 1; i < len(snap); i++ {
					prev, _ := strconv.Atoi(snap[i-1].ID)
					cur, _ := strconv.Atoi(snap[i].ID)
					if prev != cur+1 {
						errs <- "non-contiguous snapshot " + snap[i-1].ID + "," + snap[i].ID
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		feed.Emit()
	}
	cancel()
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}

func TestRunEmitsUntilCanceled(t *testing.T) {
	feed := New(standardConfig(), zerolog.Nop(), WithSource(counterSource()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	require.Eventually(t, func() bool { return feed.Len() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestGeneratorProducesValidSignals(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewPCG(7, 11)))
	for i := 0; i < 500; i++ {
		sig := gen.Next()

		_, err := uuid.Parse(sig.ID)
		require.NoError(t, err)
		assert.Contains(t, symbols, sig.Symbol)
		assert.Contains(t, categories, sig.Category)
		assert.Contains(t, priorities, sig.Priority)
		assert.Contains(t, timeframes, sig.Timeframe)
		assert.Contains(t, analyses, sig.Analysis)
		assert.GreaterOrEqual(t, sig.Price, 100.0)
		assert.LessOrEqual(t, sig.Price, 1100.0)
		assert.GreaterOrEqual(t, sig.Confidence, 70)
		assert.Less(t, sig.Confidence, 100)
		assert.Equal(t, sig.Price, roundedTwo(sig.Price))

		switch sig.Type {
		case signal.Buy:
			assert.InDelta(t, sig.Price*1.02, sig.TargetPrice, 0.011)
			assert.InDelta(t, sig.Price*0.98, sig.StopLoss, 0.011)
			assert.Greater(t, sig.TargetPrice, sig.StopLoss)
		case signal.Sell:
			assert.InDelta(t, sig.Price*0.98, sig.TargetPrice, 0.011)
			assert.InDelta(t, sig.Price*1.02, sig.StopLoss, 0.011)
			assert.Less(t, sig.TargetPrice, sig.StopLoss)
		default:
			t.Fatalf("unexpected side %q", sig.Type)
		}
	}
}

func TestGeneratorCoversTables(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewPCG(1, 1)))
	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		seen[gen.Next().Symbol] = true
	}
	for _, sym := range symbols {
		assert.True(t, seen[sym], "symbol %s never drawn", sym)
	}
}

func roundedTwo(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	out, _ := strconv.ParseFloat(s, 64)
	return out
}
