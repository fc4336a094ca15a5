package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/subscription"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultBaseReconnectDelay   = time.Second
)

// Manager owns one logical connection, reconnects it with exponential
// backoff, and routes inbound envelopes to a subscription registry.
//
// State listeners run while the manager lock is held and must not call
// back into the Manager.
type Manager struct {
	log         zerolog.Logger
	registry    *subscription.Registry
	dialers     map[string]Dialer
	modeFn      func() string
	clock       Clock
	maxAttempts int
	baseDelay   time.Duration

	mu         sync.Mutex
	state      State
	mode       string
	attempts   int
	gen        uint64
	conn       Conn
	timer      Timer
	cancelDial context.CancelFunc
	earlyClose error // remote close seen before Dial returned
	pending    []chan error
	lastErr    error
	listeners  []func(StateChange)
}

// Option configures Manager construction parameters.
type Option func(*Manager)

// WithReconnectPolicy overrides the attempt cap and base backoff delay.
func WithReconnectPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(m *Manager) {
		if maxAttempts >= 0 {
			m.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			m.baseDelay = baseDelay
		}
	}
}

// WithDialer registers the dialer used when the resolved mode equals mode.
func WithDialer(mode string, d Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialers[mode] = d
		}
	}
}

// WithModeFunc sets the function consulted on each connect to pick a dialer.
func WithModeFunc(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.modeFn = fn
		}
	}
}

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewManager constructs a disconnected manager routing into registry.
func NewManager(registry *subscription.Registry, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:         log,
		registry:    registry,
		dialers:     make(map[string]Dialer),
		modeFn:      func() string { return config.ModeSimulated },
		clock:       wallClock{},
		maxAttempts: defaultMaxReconnectAttempts,
		baseDelay:   defaultBaseReconnectDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics.ConnectionState.Set(float64(StateDisconnected))
	return m
}

// OnStateChange registers fn for every transition.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the reconnect attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Mode returns the mode resolved for the current or last connection.
func (m *Manager) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// LastError returns the most recent connection error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connect starts a connection attempt and returns a channel that receives
// its outcome exactly once. While CONNECTING or CONNECTED no new attempt is
// made; the channel resolves with the in-flight outcome or nil. A call from
// DISCONNECTED or TERMINAL_FAILED starts with a fresh attempt budget; a call
// while RECONNECTING skips the pending backoff.
func (m *Manager) Connect(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnected:
		result <- nil
		return result
	case StateConnecting:
		m.pending = append(m.pending, result)
		return result
	case StateReconnecting:
		m.stopTimerLocked()
	case StateDisconnected, StateFailed:
		m.attempts = 0
		m.lastErr = nil
	}
	m.pending = append(m.pending, result)
	m.startDialLocked(ctx)
	return result
}

// Disconnect closes the active connection, cancels any pending reconnect,
// resets the attempt counter, and moves to DISCONNECTED. It is idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	m.resolveLocked(ErrDisconnected)
	if m.state != StateDisconnected {
		m.setStateLocked(StateChange{To: StateDisconnected})
	}
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// Send marshals message and writes it when CONNECTED. Without a live
// connection the message is dropped and logged; that is not an error.
func (m *Manager) Send(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		metrics.MessagesDropped.WithLabelValues("not_connected").Inc()
		m.log.Warn().Err(ErrNotConnected).Str("state", state.String()).RawJSON("message", data).Msg("dropping outbound message")
		return nil
	}
	if err := conn.Send(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (m *Manager) startDialLocked(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.gen++
	gen := m.gen
	m.mode = m.modeFn()
	dialer := m.dialers[m.mode]

	dialCtx, cancel := context.WithCancel(ctx)
	m.cancelDial = cancel
	m.earlyClose = nil
	m.setStateLocked(StateChange{To: StateConnecting, Attempt: m.attempts})
	m.log.Info().Str("mode", m.mode).Int("attempt", m.attempts).Msg("connecting")

	go m.dial(dialCtx, cancel, gen, dialer)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, dialer Dialer) {
	var (
		conn Conn
		err  error
	)
	if dialer == nil {
		err = fmt.Errorf("no dialer for mode %q", m.Mode())
	} else {
		conn, err = dialer.Dial(ctx, Callbacks{
			OnMessage: func(raw []byte) { m.handleMessage(gen, raw) },
			OnClose:   func(cerr error) { m.handleClose(gen, cerr) },
		})
	}

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		cancel()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil
	var dead Conn
	if err == nil && m.earlyClose != nil {
		err, dead = m.earlyClose, conn
		m.earlyClose = nil
	}
	if err != nil {
		terr := &TransientConnectionError{Attempt: m.attempts, Err: err}
		m.lastErr = terr
		m.resolveLocked(terr)
		m.log.Warn().Err(err).Int("attempt", m.attempts).Msg("connect failed")
		m.scheduleReconnectLocked(terr)
		m.mu.Unlock()
		cancel()
		if dead != nil {
			_ = dead.Close()
		}
		return
	}
	m.conn = conn
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateChange{To: StateConnected})
	m.resolveLocked(nil)
	m.log.Info().Str("mode", m.mode).Msg("connected market data feed")
	m.mu.Unlock()
	cancel()
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	if err == nil {
		err = fmt.Errorf("remote closed connection")
	}
	switch m.state {
	case StateConnecting:
		// dial picks this up once Dial returns.
		m.earlyClose = fmt.Errorf("closed during connect: %w", err)
		return
	case StateConnected:
	default:
		return
	}
	m.conn = nil
	m.log.Warn().Err(err).Msg("market data feed disconnected, retrying")
	m.scheduleReconnectLocked(&TransientConnectionError{Attempt: m.attempts, Err: err})
}

func (m *Manager) scheduleReconnectLocked(cause error) {
	if m.attempts >= m.maxAttempts {
		terr := &TerminalConnectionError{Attempts: m.attempts, Err: cause}
		m.lastErr = terr
		m.setStateLocked(StateChange{To: StateFailed, Attempt: m.attempts, Err: terr})
		m.log.Error().Err(terr).Msg("max reconnection attempts reached")
		return
	}
	m.attempts++
	delay := Backoff(m.baseDelay, m.attempts)
	metrics.ReconnectAttempts.Inc()
	m.setStateLocked(StateChange{To: StateReconnecting, Attempt: m.attempts, Delay: delay, Err: cause})
	m.log.Info().Int("attempt", m.attempts).Int("max", m.maxAttempts).Dur("delay", delay).Msg("reconnect scheduled")

	gen := m.gen
	m.timer = m.clock.AfterFunc(delay, func() { m.fireReconnect(gen) })
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != StateReconnecting {
		return
	}
	m.timer = nil
	m.startDialLocked(context.Background())
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) resolveLocked(err error) {
	for _, ch := range m.pending {
		ch <- err
	}
	m.pending = nil
}

func (m *Manager) setStateLocked(change StateChange) {
	change.From = m.state
	m.state = change.To
	metrics.ConnectionState.Set(float64(change.To))
	for _, fn := range m.listeners {
		fn(change)
	}
}

// handleMessage decodes one inbound frame and notifies subscribers. Bad
// frames are logged and dropped; routing continues with the next frame.
func (m *Manager) handleMessage(gen uint64, raw []byte) {
	m.mu.Lock()
	live := gen == m.gen && (m.state == StateConnected || m.state == StateConnecting)
	m.mu.Unlock()
	if !live {
		metrics.MessagesDropped.WithLabelValues("stale_connection").Inc()
		return
	}

	event, payload, err := decodeEnvelope(raw)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		m.log.Warn().Err(err).Int("bytes", len(raw)).Msg("failed to decode feed message")
		return
	}
	if payload == nil {
		metrics.MessagesDropped.WithLabelValues("unknown_type").Inc()
		m.log.Debug().Str("type", string(event)).Msg("dropping message with unrecognized type")
		return
	}
	m.registry.Notify(event, payload)
}
