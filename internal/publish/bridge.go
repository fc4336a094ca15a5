// Package publish forwards registry events to external sinks: NATS
// subjects, Redis pub/sub channels and a JSONL tap.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

const publishTimeout = 2 * time.Second

// Sink receives one serialized event payload.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event signal.EventType, data []byte) error
	Close() error
}

// Bridge subscribes to registry events and fans their payloads out to sinks.
type Bridge struct {
	log      zerolog.Logger
	registry *subscription.Registry
	sinks    []Sink

	mu     sync.Mutex
	tokens []subscription.Token
}

// NewBridge wires sinks to registry. Nothing is forwarded until Attach.
func NewBridge(registry *subscription.Registry, log zerolog.Logger, sinks ...Sink) *Bridge {
	return &Bridge{log: log, registry: registry, sinks: sinks}
}

// Sinks returns the configured sink names.
func (b *Bridge) Sinks() []string {
	out := make([]string, len(b.sinks))
	for i, s := range b.sinks {
		out[i] = s.Name()
	}
	return out
}

// Attach subscribes to each event. Without sinks it does nothing.
func (b *Bridge) Attach(events ...signal.EventType) {
	if len(b.sinks) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.tokens = append(b.tokens, b.registry.Subscribe(event, b.forward(event)))
	}
	b.log.Info().Strs("sinks", b.Sinks()).Int("events", len(events)).Msg("publish bridge attached")
}

func (b *Bridge) forward(event signal.EventType) subscription.Handler {
	return func(payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		var errs []error
		for _, sink := range b.sinks {
			if err := sink.Publish(ctx, event, data); err != nil {
				metrics.MessagesDropped.WithLabelValues("publish_" + sink.Name()).Inc()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			}
		}
		return errors.Join(errs...)
	}
}

// Close detaches from the registry and closes every sink.
func (b *Bridge) Close() error {
	b.mu.Lock()
	tokens := b.tokens
	b.tokens = nil
	b.mu.Unlock()

	for _, tok := range tokens {
		b.registry.Unsubscribe(tok)
	}
	var errs []error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ParseEvents maps configured names to event types. An empty list selects
// every inbound event.
func ParseEvents(names []string) ([]signal.EventType, error) {
	if len(names) == 0 {
		return append([]signal.EventType(nil), signal.InboundEvents...), nil
	}
	known := make(map[signal.EventType]bool, len(signal.InboundEvents))
	for _, e := range signal.InboundEvents {
		known[e] = true
	}
	out := make([]signal.EventType, 0, len(names))
	for _, name := range names {
		e := signal.EventType(name)
		if !known[e] {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		out = append(out, e)
	}
	return out, nil
}

// SinksFromConfig opens every sink with a configured address. On error the
// sinks opened so far are closed.
func SinksFromConfig(ctx context.Context, cfg config.Publish, log zerolog.Logger) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}
	if cfg.NATS.URL != "" {
		s, err := ConnectNATS(cfg.NATS, log)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Redis.Addr != "" {
		s, err := ConnectRedis(ctx, cfg.Redis, log)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Tap.Path != "" {
		s, err := OpenTap(cfg.Tap.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
