package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Conn is one open transport. ReadMessage blocks until a data frame arrives
// or the transport fails; implementations must allow WriteMessage and Close
// to be called concurrently with a blocked ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports to a fully built endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	WriteWait time.Duration
}

// NewWebsocketDialer returns a dialer with sane handshake and write timeouts.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		WriteWait: defaultWriteWait,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake rejected with status %d: %v", ErrTransport, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return &wsConn{conn: conn, writeWait: d.WriteWait}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage returns the next text or binary frame; gorilla answers pings itself.
func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeWait > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
