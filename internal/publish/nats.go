package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/signal"
)

// NATSPublisher is the subset of *nats.Conn the sink needs.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes each event on <prefix>.<event type>.
type NATSSink struct {
	pub    NATSPublisher
	prefix string
}

// NewNATSSink wraps an established publisher.
func NewNATSSink(pub NATSPublisher, prefix string) *NATSSink {
	return &NATSSink{pub: pub, prefix: prefix}
}

// ConnectNATS dials cfg.URL with reconnects enabled.
func ConnectNATS(cfg config.NATS, log zerolog.Logger) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("marketfeed"),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("nats sink connected")
	return NewNATSSink(nc, cfg.SubjectPrefix), nil
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject used for event.
func (s *NATSSink) Subject(event signal.EventType) string {
	if s.prefix == "" {
		return string(event)
	}
	return s.prefix + "." + string(event)
}

// Publish is fire-and-forget; ctx is unused by core NATS publishing.
func (s *NATSSink) Publish(_ context.Context, event signal.EventType, data []byte) error {
	return s.pub.Publish(s.Subject(event), data)
}

// Close drains pending messages before closing the connection.
func (s *NATSSink) Close() error { return s.pub.Drain() }
