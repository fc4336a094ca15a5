package execution

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/config"
	"marketfeed-go/internal/risk"
	"marketfeed-go/internal/signal"
)

type captureSender struct {
	sent []signal.Envelope
	err  error
}

func (c *captureSender) Send(message any) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, message.(signal.Envelope))
	return nil
}

func (c *captureSender) order(t *testing.T, i int) signal.Order {
	t.Helper()
	if c.sent[i].Type != signal.EventOrderSubmit {
		t.Fatalf("unexpected envelope type %s", c.sent[i].Type)
	}
	var o signal.Order
	if err := json.Unmarshal(c.sent[i].Data, &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return o
}

type quoteMap map[string]signal.Tick

func (q quoteMap) Get(symbol string) (signal.Tick, bool) {
	tk, ok := q[symbol]
	return tk, ok
}

type positionMap map[string]float64

func (p positionMap) Position(symbol string) float64 { return p[symbol] }

var quotes = quoteMap{
	"AAPL": {Symbol: "AAPL", Price: 175.43, Bid: 175.41, Ask: 175.45},
	"TSLA": {Symbol: "TSLA", Price: 248.67, Bid: 248.65, Ask: 248.69},
}

func TestSubmitSendsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	sender := &captureSender{}
	exec := NewExecutor(sender, quotes, risk.Limits{MaxNotionalPerTrade: 1000}, zerolog.New(&buf))

	order, err := exec.Submit(signal.Order{Symbol: " AAPL ", Side: signal.Buy, Qty: 2})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if order.ID == "" {
		t.Fatalf("expected generated order id")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	if got := sender.order(t, 0); got.ID != order.ID || got.Symbol != "AAPL" || got.Qty != 2 {
		t.Fatalf("unexpected order on the wire: %+v", got)
	}
	if !strings.Contains(buf.String(), "AAPL") {
		t.Fatalf("log does not contain symbol: %s", buf.String())
	}
}

func TestSubmitValidation(t *testing.T) {
	sender := &captureSender{}
	exec := NewExecutor(sender, quotes, risk.Limits{MaxNotionalPerTrade: 1000, MaxOrderQty: 5}, zerolog.Nop())

	cases := []struct {
		name  string
		order signal.Order
		want  error
	}{
		{"missing symbol", signal.Order{Side: signal.Buy, Qty: 1}, nil},
		{"bad side", signal.Order{Symbol: "AAPL", Side: "HOLD", Qty: 1}, nil},
		{"zero qty", signal.Order{Symbol: "AAPL", Side: signal.Buy}, nil},
		{"no quote", signal.Order{Symbol: "GOLD", Side: signal.Buy, Qty: 1}, ErrNoQuote},
		{"qty limit", signal.Order{Symbol: "AAPL", Side: signal.Buy, Qty: 6}, risk.ErrQuantity},
		{"notional limit", signal.Order{Symbol: "TSLA", Side: signal.Sell, Qty: 5}, risk.ErrNotional},
	}
	for _, tc := range cases {
		_, err := exec.Submit(tc.order)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("rejected orders must not be sent")
	}

	if _, err := exec.Submit(signal.Order{Symbol: "GOLD", Side: signal.Buy, Qty: 1, Price: 20}); err != nil {
		t.Fatalf("limit order without quote should pass: %v", err)
	}
}

func TestSubmitPropagatesSendError(t *testing.T) {
	exec := NewExecutor(&captureSender{err: errors.New("broken pipe")}, quotes, risk.Limits{}, zerolog.Nop())
	if _, err := exec.Submit(signal.Order{Symbol: "AAPL", Side: signal.Buy, Qty: 1}); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestFollowerPlacesOrders(t *testing.T) {
	sender := &captureSender{}
	exec := NewExecutor(sender, quotes, risk.Limits{MaxNotionalPerTrade: 1000}, zerolog.Nop())
	follower := NewFollower(exec, quotes, positionMap{"TSLA": 0.5}, config.Trading{MinConfidence: 80, OrderQty: 1}, zerolog.Nop())
	handle := follower.Handler()

	signals := []signal.Signal{
		{ID: "low", Symbol: "AAPL", Type: signal.Buy, Confidence: 75},
		{ID: "fx", Symbol: "EUR/USD", Type: signal.Buy, Confidence: 95},
		{ID: "buy", Symbol: "AAPL", Type: signal.Buy, Confidence: 90},
		{ID: "flat", Symbol: "AAPL", Type: signal.Sell, Confidence: 90},
		{ID: "sell", Symbol: "TSLA", Type: signal.Sell, Confidence: 99},
	}
	for _, s := range signals {
		if err := handle(s); err != nil {
			t.Fatalf("%s: handler error %v", s.ID, err)
		}
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected two orders, got %d", len(sender.sent))
	}
	if o := sender.order(t, 0); o.Symbol != "AAPL" || o.Side != signal.Buy || o.Qty != 1 {
		t.Fatalf("unexpected buy %+v", o)
	}
	if o := sender.order(t, 1); o.Symbol != "TSLA" || o.Side != signal.Sell || o.Qty != 0.5 {
		t.Fatalf("sell should be capped at position: %+v", o)
	}
	if err := handle("nope"); err == nil {
		t.Fatalf("expected payload type error")
	}
}

func TestFollowerSkipsRiskRejections(t *testing.T) {
	sender := &captureSender{}
	exec := NewExecutor(sender, quotes, risk.Limits{MaxNotionalPerTrade: 10}, zerolog.Nop())
	follower := NewFollower(exec, quotes, nil, config.Trading{MinConfidence: 0, OrderQty: 1}, zerolog.Nop())

	placed, err := follower.Follow(signal.Signal{Symbol: "AAPL", Type: signal.Buy, Confidence: 99})
	if err != nil || placed {
		t.Fatalf("expected silent skip, got placed=%v err=%v", placed, err)
	}
	placed, _ = follower.Follow(signal.Signal{Symbol: "AAPL", Type: signal.Sell, Confidence: 99})
	if placed {
		t.Fatalf("sell without a position source must be skipped")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}
