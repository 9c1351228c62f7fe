package presence

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// Conn is an open bidirectional transport. Read blocks until a frame arrives
// or the transport fails.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// WebSocketDialer dials text WebSocket connections.
type WebSocketDialer struct {
	HTTPClient *stdhttp.Client
	// ReadLimit caps inbound frame size in bytes. Zero keeps the library default.
	ReadLimit int64
}

// Dial opens a WebSocket to target.
func (d WebSocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Endpoint joins the base URL and the identity as the trailing path segment.
func Endpoint(base, identity string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(identity)
}
