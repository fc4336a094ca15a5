// Package notify keeps a bounded in-memory notification inbox fed from
// trading signals and order updates.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketfeed-go/internal/signal"
	"marketfeed-go/internal/subscription"
)

const defaultCapacity = 50

// Kind classifies a notification.
type Kind string

const (
	KindSignal Kind = "signal"
	KindTrade  Kind = "trade"
	KindNews   Kind = "news"
	KindSystem Kind = "system"
)

// Notification is one inbox entry.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Inbox stores notifications newest first.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	items    []Notification
	unread   int
}

// NewInbox creates an inbox holding at most capacity entries.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Inbox{capacity: capacity, items: make([]Notification, 0, capacity)}
}

// Add prepends n, assigning an id and timestamp when missing, and evicts the
// oldest entries past capacity.
func (in *Inbox) Add(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	size := min(len(in.items)+1, in.capacity)
	next := make([]Notification, size, in.capacity)
	next[0] = n
	copy(next[1:], in.items)
	in.items = next
	in.unread = countUnread(next)
	return n
}

// MarkRead flags id as read and reports whether it was found.
func (in *Inbox) MarkRead(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID == id {
			if !in.items[i].Read {
				in.items[i].Read = true
				in.unread--
			}
			return true
		}
	}
	return false
}

// ClearAll empties the inbox.
func (in *Inbox) ClearAll() {
	in.mu.Lock()
	in.items = in.items[:0]
	in.unread = 0
	in.mu.Unlock()
}

// Unread returns the unread count.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.unread
}

// Snapshot returns a copy of the notifications, newest first.
func (in *Inbox) Snapshot() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Notification, len(in.items))
	copy(out, in.items)
	return out
}

func countUnread(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}

// SignalHandler turns trading_signal payloads into notifications.
func (in *Inbox) SignalHandler() subscription.Handler {
	return func(payload any) error {
		sig, ok := payload.(signal.Signal)
		if !ok {
			return fmt.Errorf("unexpected trading_signal payload %T", payload)
		}
		in.Add(FromSignal(sig))
		return nil
	}
}

// OrderHandler records terminal order updates as trade notifications.
func (in *Inbox) OrderHandler() subscription.Handler {
	return func(payload any) error {
		up, ok := payload.(signal.OrderUpdate)
		if !ok {
			return fmt.Errorf("unexpected order_update payload %T", payload)
		}
		if up.Status == signal.OrderAccepted {
			return nil
		}
		in.Add(FromOrderUpdate(up))
		return nil
	}
}

// FromSignal builds the notification shown for a new signal.
func FromSignal(sig signal.Signal) Notification {
	return Notification{
		Title:     fmt.Sprintf("New %s signal: %s", sig.Type, sig.Symbol),
		Message:   fmt.Sprintf("%s (confidence %d%%, %s)", sig.Analysis, sig.Confidence, sig.Timeframe),
		Kind:      KindSignal,
		Priority:  strings.ToLower(string(sig.Priority)),
		Timestamp: sig.Timestamp,
	}
}

// FromOrderUpdate builds the notification for a fill or rejection.
func FromOrderUpdate(up signal.OrderUpdate) Notification {
	n := Notification{
		Kind:     KindTrade,
		Priority: "medium",
	}
	if up.Timestamp > 0 {
		n.Timestamp = time.UnixMilli(up.Timestamp)
	}
	switch up.Status {
	case signal.OrderFilled:
		n.Title = fmt.Sprintf("%s %s filled", up.Side, up.Symbol)
		n.Message = fmt.Sprintf("%g @ %.2f", up.FilledQty, up.FillPrice)
	default:
		n.Title = fmt.Sprintf("%s %s %s", up.Side, up.Symbol, strings.ToLower(string(up.Status)))
		n.Message = up.Reason
		n.Priority = "high"
	}
	return n
}
