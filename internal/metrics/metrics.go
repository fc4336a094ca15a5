// Package metrics exposes Prometheus collectors for the feed client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks applied to the store"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals inserted into the feed buffer"},
		[]string{"category"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "messages_dropped_total", Help: "Inbound or outbound messages dropped"},
		[]string{"reason"},
	)
	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "handler_errors_total", Help: "Subscriber callbacks that failed"},
		[]string{"event"},
	)
	ReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconnect_attempts_total", Help: "Reconnect attempts scheduled"},
	)
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "connection_state", Help: "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed)"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		SignalsTotal,
		OrdersTotal,
		MessagesDropped,
		HandlerErrors,
		ReconnectAttempts,
		ConnectionState,
	)
}

// Serve starts a background /metrics listener and returns the server for shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
