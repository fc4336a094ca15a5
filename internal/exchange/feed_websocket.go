package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 15 * time.Second
	defaultReadTimeout      = 30 * time.Second
	writeTimeout            = 5 * time.Second
	maxFrameBytes           = 1 << 20
)

// subscribeRequest is sent right after the socket opens.
type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// WebsocketDialer connects to a JSON-envelope market data socket. Every text
// frame is one {"type","data"} envelope.
type WebsocketDialer struct {
	URL              string
	Symbols          []string
	Log              zerolog.Logger
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
}

// Dial opens the socket, subscribes to Symbols, and starts the read and
// ping loops.
func (d *WebsocketDialer) Dial(ctx context.Context, cb Callbacks) (Conn, error) {
	if d.URL == "" {
		return nil, errors.New("websocket feed requires a url")
	}
	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	pingInterval := d.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshake}
	ws, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c := &wsConn{
		ws:          ws,
		log:         d.Log,
		cb:          cb,
		readTimeout: readTimeout,
		done:        make(chan struct{}),
	}
	if len(d.Symbols) > 0 {
		if err := c.writeJSON(subscribeRequest{Action: "subscribe", Symbols: d.Symbols}); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	go c.readPump()
	go c.pingLoop(pingInterval)

	d.Log.Info().Str("url", d.URL).Strs("symbols", d.Symbols).Msg("websocket feed connected")
	return c, nil
}

type wsConn struct {
	ws          *websocket.Conn
	log         zerolog.Logger
	cb          Callbacks
	readTimeout time.Duration
	writeMu     sync.Mutex
	closed      atomic.Bool
	done        chan struct{}
	closeOnce   sync.Once
}

func (c *wsConn) readPump() {
	defer c.shutdown()
	for {
		msgType, message, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && c.cb.OnClose != nil {
				c.cb.OnClose(err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(message)
		}
	}
}

func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warn().Err(err).Msg("websocket ping failed")
				// Unblocks readPump, which reports the close.
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Send writes one text frame.
func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("websocket closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the socket down. OnClose is not
// invoked for a local close.
func (c *wsConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	c.shutdown()
	return c.ws.Close()
}

func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
