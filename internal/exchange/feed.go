// Package exchange hosts the connection manager and the transports that feed it.
package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
)

// Callbacks are invoked by a Conn for inbound traffic. OnClose fires once
// when the remote side ends the connection; it is not called for Close.
type Callbacks struct {
	OnMessage func(raw []byte)
	OnClose   func(err error)
}

// Conn is one established transport connection.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Dialer opens a Conn. Implementations must honor ctx during the handshake.
type Dialer interface {
	Dial(ctx context.Context, cb Callbacks) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cb Callbacks) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, cb Callbacks) (Conn, error) { return f(ctx, cb) }

// Clock schedules the reconnect timer. *time.Timer satisfies Timer.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DialersFromConfig builds the mode-keyed dialers for a Manager: the
// simulated dialer wraps gen, the live dialer targets cfg.URL.
func DialersFromConfig(cfg config.Feed, gen *TickGenerator, log zerolog.Logger) map[string]Dialer {
	return map[string]Dialer{
		config.ModeSimulated: &SimulatedDialer{
			Generator:    gen,
			ConnectDelay: cfg.ConnectDelay(),
			Log:          log,
		},
		config.ModeLive: &WebsocketDialer{
			URL:     cfg.URL,
			Symbols: cfg.Symbols,
			Log:     log,
		},
	}
}
