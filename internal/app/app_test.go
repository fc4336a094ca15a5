package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/exchange"
	"marketfeed-go/internal/signal"
)

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), nil, zerolog.Nop())
	require.Error(t, err)

	cfg := config.Default()
	cfg.Publish.Events = []string{"gossip"}
	_, err = New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewWiresSubscribers(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.FollowSignals = true
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, a.Registry.Count(signal.EventMarketData), "store and portfolio")
	assert.Equal(t, 2, a.Registry.Count(signal.EventOrderUpdate), "inbox and portfolio")
	assert.Equal(t, 2, a.Registry.Count(signal.EventTradingSignal), "inbox and follower")
	assert.Equal(t, exchange.StateDisconnected, a.Manager.State())
	assert.Empty(t, a.Bridge.Sinks())
	assert.Equal(t, cfg.Signals.MaxStandard, a.Signals.Capacity())

	a.trackStatus(exchange.StateChange{From: exchange.StateConnecting, To: exchange.StateConnected})
	assert.True(t, a.Store.Status().Connected)
	a.trackStatus(exchange.StateChange{To: exchange.StateFailed, Err: &exchange.TerminalConnectionError{Attempts: 5}})
	st := a.Store.Status()
	assert.True(t, st.Failed)
	assert.Contains(t, st.Detail, "TERMINAL_FAILED")

	require.NoError(t, a.Close())
}
