// Package signal standardizes payloads shared between the connection layer, stores, and consumers.
package signal

import (
	"encoding/json"
	"time"
)

// EventType tags an inbound or outbound envelope.
type EventType string

const (
	// EventMarketData carries a batch of ticks, one per symbol.
	EventMarketData EventType = "market_data"
	// EventTradingSignal carries a single Signal.
	EventTradingSignal EventType = "trading_signal"
	// EventOrderUpdate carries an OrderUpdate acknowledging or filling an order.
	EventOrderUpdate EventType = "order_update"
	// EventPortfolioUpdate carries a portfolio valuation snapshot.
	EventPortfolioUpdate EventType = "portfolio_update"
	// EventOrderSubmit is the outbound order request.
	EventOrderSubmit EventType = "order_submit"
)

// InboundEvents lists the types routed from a connection to subscribers.
var InboundEvents = []EventType{
	EventMarketData,
	EventTradingSignal,
	EventOrderUpdate,
	EventPortfolioUpdate,
}

// Envelope is the wire shape of every message: {"type": ..., "data": ...}.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data under the given type.
func NewEnvelope(t EventType, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Data: raw}, nil
}

// Tick is one timestamped quote snapshot for a symbol. Ticks are immutable;
// a newer tick for the same symbol replaces the previous one.
type Tick struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        string  `json:"volume"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	Timestamp     int64   `json:"timestamp"` // ms since epoch
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Spread        float64 `json:"spread"`
}

// Time converts the millisecond timestamp.
func (t Tick) Time() time.Time { return time.UnixMilli(t.Timestamp) }

// Side is the direction of a signal or order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Priority ranks a signal for display and notification.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Category groups signal symbols by asset class.
type Category string

const (
	CategoryForex       Category = "FOREX"
	CategoryCrypto      Category = "CRYPTO"
	CategoryStocks      Category = "STOCKS"
	CategoryCommodities Category = "COMMODITIES"
)

// Signal is a generated trade recommendation.
type Signal struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Type        Side      `json:"type"`
	Price       float64   `json:"price"`
	TargetPrice float64   `json:"targetPrice"`
	StopLoss    float64   `json:"stopLoss"`
	Confidence  int       `json:"confidence"` // 0..100
	Timeframe   string    `json:"timeframe"`
	Analysis    string    `json:"analysis"`
	Timestamp   time.Time `json:"timestamp"`
	Priority    Priority  `json:"priority"`
	Category    Category  `json:"category"`
}

// Order is an outbound placement request.
type Order struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"` // 0 for market
}

// OrderStatus reports the lifecycle stage carried by an OrderUpdate.
type OrderStatus string

const (
	OrderAccepted OrderStatus = "ACCEPTED"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderUpdate is the inbound acknowledgement for an order.
type OrderUpdate struct {
	OrderID   string      `json:"orderId"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Status    OrderStatus `json:"status"`
	FilledQty float64     `json:"filledQty"`
	FillPrice float64     `json:"fillPrice"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
