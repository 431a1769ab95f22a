// Package websocket owns the socket behind a command channel: it dials,
// feeds inbound frames to a hook in arrival order and reconnects after a
// fixed delay whenever the socket goes away.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = 10 * time.Second
	defaultDialTimeout    = 15 * time.Second
	writeTimeout          = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send while no socket is open. The frame
	// is lost; nothing is queued.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed marks an orderly close by the peer.
	ErrClosed = errors.New("connection closed")

	errDisconnect = errors.New("disconnect requested")
)

type Options struct {
	ReconnectDelay time.Duration // fixed wait between a close and the next dial
	PingInterval   time.Duration // keepalive pings when positive
	DialTimeout    time.Duration
	Dialer         Dialer
}

type Client struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	gen       uint64 // bumped by every Connect, Run and Disconnect
	conn      Conn
	connID    string
	stop      context.CancelCauseFunc
	onConnect []func()
	onFrame   func([]byte)
}

func New(opts Options, log *zap.Logger) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = WSDialer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{opts: opts, log: log.Named("ws")}
}

// OnConnect registers fn to run after every successful dial, reconnects
// included, in registration order.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnFrame sets the hook receiving raw inbound frames. It runs on the reader
// goroutine, one frame at a time.
func (c *Client) OnFrame(fn func(data []byte)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

// Connect starts the connection loop in the background, replacing any loop
// already running. Failures are handled by reconnecting, never returned.
func (c *Client) Connect(ctx context.Context, url string) {
	runCtx, cancel, gen := c.begin(ctx)
	go c.loop(runCtx, cancel, gen, url)
}

// Run is Connect without the goroutine: it returns once ctx is done or
// Disconnect is called.
func (c *Client) Run(ctx context.Context, url string) {
	runCtx, cancel, gen := c.begin(ctx)
	c.loop(runCtx, cancel, gen, url)
}

// begin retires the running loop, if any, and hands out the generation the
// new loop must hold to publish its socket.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelCauseFunc, uint64) {
	runCtx, cancel := context.WithCancelCause(ctx)
	c.mu.Lock()
	prev := c.stop
	c.stop = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	if prev != nil {
		prev(context.Canceled)
	}
	return runCtx, cancel, gen
}

// Disconnect closes the active socket with a normal closure and stops
// reconnecting. Unlike a close from the peer or a transport error, no new
// dial follows. The close completes on the loop's goroutine.
func (c *Client) Disconnect() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.gen++
	c.mu.Unlock()

	if stop != nil {
		stop(errDisconnect)
	}
	c.log.Info("disconnecting")
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes a pre-serialized envelope as one text frame.
func (c *Client) Send(ctx context.Context, data string) error {
	c.mu.Lock()
	conn, id := c.conn, c.connID
	c.mu.Unlock()

	if conn == nil {
		c.log.Debug("dropping outbound frame", zap.String("payload", data))
		return ErrNotConnected
	}
	c.log.Debug("send", zap.String("conn_id", id), zap.String("payload", data))

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, []byte(data)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) loop(ctx context.Context, cancel context.CancelCauseFunc, gen uint64, url string) {
	defer cancel(nil)
	for {
		err := c.session(ctx, gen, url)
		if ctx.Err() != nil {
			c.log.Info("connection loop stopped", zap.String("url", url))
			return
		}
		c.log.Warn("connection lost",
			zap.String("url", url),
			zap.Error(err),
			zap.Duration("retry_in", c.opts.ReconnectDelay),
		)
		select {
		case <-ctx.Done():
			c.log.Info("connection loop stopped", zap.String("url", url))
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context, gen uint64, url string) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(dialCtx, url)
	cancelDial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.CloseNow() //nolint:errcheck

	id := uuid.NewString()
	log := c.log.With(zap.String("conn_id", id))
	if ctx.Err() != nil || !c.setConn(conn, id, gen) {
		log.Debug("dropping socket of a retired loop", zap.String("url", url))
		return context.Cause(ctx)
	}
	defer c.clearConn(conn)
	log.Info("connected", zap.String("url", url))

	// Reads are not tied to ctx: cancelling a read would drop the socket
	// without a close frame. The watcher closes it properly instead.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			reason := "shutting down"
			if errors.Is(context.Cause(ctx), errDisconnect) {
				reason = "disconnect"
			}
			if err := conn.Close(reason); err != nil {
				log.Debug("close", zap.String("reason", reason), zap.Error(err))
			}
		case <-done:
		}
	}()

	for _, fn := range c.connectCallbacks() {
		fn()
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.opts.PingInterval > 0 {
		go c.heartbeat(sessCtx, conn, log)
	}

	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if peerClosed(err) {
				return fmt.Errorf("%w: %v", ErrClosed, err)
			}
			log.Error("transport error", zap.Error(err))
			conn.CloseNow() //nolint:errcheck
			return err
		}
		c.frame(data)
	}
}

func (c *Client) heartbeat(ctx context.Context, conn Conn, log *zap.Logger) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("ping failed", zap.Error(err))
				conn.CloseNow() //nolint:errcheck
				return
			}
		}
	}
}

func (c *Client) frame(data []byte) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	if fn == nil {
		c.log.Debug("no frame hook, dropping frame", zap.ByteString("payload", data))
		return
	}
	fn(data)
}

func (c *Client) connectCallbacks() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(), len(c.onConnect))
	copy(out, c.onConnect)
	return out
}

// setConn publishes conn unless a newer Connect, Run or Disconnect has
// retired generation gen.
func (c *Client) setConn(conn Conn, id string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn, c.connID = conn, id
	return true
}

func (c *Client) clearConn(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn, c.connID = nil, ""
	}
	c.mu.Unlock()
}
