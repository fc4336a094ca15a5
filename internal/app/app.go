// Package app assembles the feed client: connection manager, stores, signal
// feed, paper trading and external publishing around one registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/exchange"
	"marketfeed-go/internal/execution"
	"marketfeed-go/internal/marketdata"
	"marketfeed-go/internal/notify"
	"marketfeed-go/internal/paper"
	"marketfeed-go/internal/publish"
	"marketfeed-go/internal/risk"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/signalfeed"
	"marketfeed-go/internal/subscription"
	"marketfeed-go/internal/util"
)

// App owns every long-lived component. Fields are exported for read access
// by the daemon and tests; they are wired once in New.
type App struct {
	Config    *config.Config
	Registry  *subscription.Registry
	Store     *marketdata.Store
	Generator *exchange.TickGenerator
	Manager   *exchange.Manager
	Signals   *signalfeed.Feed
	Inbox     *notify.Inbox
	Portfolio *paper.Portfolio
	Executor  *execution.Executor
	Bridge    *publish.Bridge

	log zerolog.Logger
}

// Option adjusts construction, mostly for tests.
type Option func(*options)

type options struct {
	managerOpts []exchange.Option
	signalOpts  []signalfeed.Option
	sinks       []publish.Sink
}

// WithManagerOptions appends options after the configured ones.
func WithManagerOptions(opts ...exchange.Option) Option {
	return func(o *options) { o.managerOpts = append(o.managerOpts, opts...) }
}

// WithSignalOptions appends signal feed options.
func WithSignalOptions(opts ...signalfeed.Option) Option {
	return func(o *options) { o.signalOpts = append(o.signalOpts, opts...) }
}

// WithSinks adds sinks next to the configured ones.
func WithSinks(sinks ...publish.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// New wires every component from cfg. Publish sinks are dialed here, so ctx
// bounds their connection attempts.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, log: log}
	a.Registry = subscription.NewRegistry(util.Component(log, "registry"))
	a.Store = marketdata.NewStore()
	a.Registry.Subscribe(signal.EventMarketData, a.Store.MarketDataHandler())

	a.Generator = exchange.NewTickGenerator(exchange.SeedsFor(cfg.Feed.Symbols), cfg.Feed.TickInterval())
	managerOpts := []exchange.Option{
		exchange.WithReconnectPolicy(cfg.Feed.ReconnectAttempts(), cfg.Feed.ReconnectDelay()),
		exchange.WithModeFunc(cfg.Feed.ResolveMode),
	}
	for mode, d := range exchange.DialersFromConfig(cfg.Feed, a.Generator, util.Component(log, "transport")) {
		managerOpts = append(managerOpts, exchange.WithDialer(mode, d))
	}
	a.Manager = exchange.NewManager(a.Registry, util.Component(log, "connection"), append(managerOpts, o.managerOpts...)...)
	a.Manager.OnStateChange(a.trackStatus)

	a.Inbox = notify.NewInbox(cfg.Notifications.Capacity)
	a.Registry.Subscribe(signal.EventTradingSignal, a.Inbox.SignalHandler())
	a.Registry.Subscribe(signal.EventOrderUpdate, a.Inbox.OrderHandler())

	a.Portfolio = paper.NewPortfolio(cfg.Paper, a.Registry, util.Component(log, "paper"))
	a.Registry.Subscribe(signal.EventOrderUpdate, a.Portfolio.OrderUpdateHandler())
	a.Registry.Subscribe(signal.EventMarketData, a.Portfolio.MarketDataHandler())

	a.Executor = execution.NewExecutor(a.Manager, a.Store, risk.FromConfig(cfg.Risk), util.Component(log, "execution"))
	if cfg.Trading.FollowSignals {
		follower := execution.NewFollower(a.Executor, a.Store, a.Portfolio, cfg.Trading, util.Component(log, "follower"))
		a.Registry.Subscribe(signal.EventTradingSignal, follower.Handler())
	}

	events, err := publish.ParseEvents(cfg.Publish.Events)
	if err != nil {
		return nil, fmt.Errorf("publish events: %w", err)
	}
	sinks, err := publish.SinksFromConfig(ctx, cfg.Publish, util.Component(log, "publish"))
	if err != nil {
		return nil, fmt.Errorf("publish sinks: %w", err)
	}
	a.Bridge = publish.NewBridge(a.Registry, util.Component(log, "publish"), append(sinks, o.sinks...)...)
	a.Bridge.Attach(events...)

	signalOpts := append([]signalfeed.Option{signalfeed.WithRegistry(a.Registry)}, o.signalOpts...)
	a.Signals = signalfeed.New(cfg.Signals, util.Component(log, "signals"), signalOpts...)
	return a, nil
}

func (a *App) trackStatus(change exchange.StateChange) {
	st := marketdata.Status{
		Connected: change.To == exchange.StateConnected,
		Failed:    change.To == exchange.StateFailed,
		Detail:    change.To.String(),
		Since:     time.Now(),
	}
	if change.Err != nil {
		st.Detail = fmt.Sprintf("%s: %v", change.To, change.Err)
	}
	a.Store.SetStatus(st)
}

// Start connects the feed and starts the signal cadence. It returns the
// outcome of the first connection attempt; a failed attempt keeps retrying
// in the background.
func (a *App) Start(ctx context.Context) <-chan error {
	go func() {
		if err := a.Signals.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("signal feed stopped")
		}
	}()
	return a.Manager.Connect(ctx)
}

// Reconnect issues an explicit connect, the only way out of TERMINAL_FAILED.
func (a *App) Reconnect(ctx context.Context) <-chan error {
	a.log.Info().Str("state", a.Manager.State().String()).Msg("manual reconnect requested")
	return a.Manager.Connect(ctx)
}

// Summary logs one line describing the current state of every reader-facing
// component.
func (a *App) Summary() {
	snap := a.Store.Snapshot()
	status := a.Store.Status()
	pf := a.Portfolio.Snapshot()
	a.log.Info().
		Str("state", a.Manager.State().String()).
		Bool("connected", status.Connected).
		Bool("failed", status.Failed).
		Int("symbols", snap.Len()).
		Uint64("seq", snap.Seq()).
		Int("signals", a.Signals.Len()).
		Bool("premium", a.Signals.Premium()).
		Int("unread", a.Inbox.Unread()).
		Float64("cash", pf.Cash).
		Float64("equity", pf.Equity).
		Int("positions", len(pf.Positions)).
		Msg("feed summary")
}

// Close disconnects and releases publish sinks. The signal feed stops with
// the context passed to Start.
func (a *App) Close() error {
	var errs []error
	if err := a.Manager.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Bridge.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
