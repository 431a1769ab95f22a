package websocket

import (
	"context"
	"errors"

	"nhooyr.io/websocket"
)

// Conn is one open socket. Read returns whole text or binary frames.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	// Close performs a normal closure with the given reason.
	Close(reason string) error
	// CloseNow drops the socket without a close handshake.
	CloseNow() error
}

// Dialer opens a Conn to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials real websockets.
type WSDialer struct {
	ReadLimit int64
	Options   *websocket.DialOptions
}

func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error { return w.c.Ping(ctx) }

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

func (w *wsConn) CloseNow() error { return w.c.CloseNow() }

// peerClosed reports whether err is the peer's close frame rather than a
// transport failure.
func peerClosed(err error) bool {
	if errors.Is(err, ErrClosed) {
		return true
	}
	return websocket.CloseStatus(err) != -1
}
