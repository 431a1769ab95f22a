package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wscomsrv/wscomsrv/internal/channel"
	"github.com/wscomsrv/wscomsrv/internal/websocket"
)

func newGUI(t *testing.T) (*GUI, *channel.Channel, *observer.ObservedLogs) {
	return newGUIWith(t, context.Background(), nil)
}

func newGUIWith(t *testing.T, ctx context.Context, d websocket.Dialer) (*GUI, *channel.Channel, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	client := websocket.New(websocket.Options{ReconnectDelay: time.Second, Dialer: d}, log)
	ch := channel.New(client, "gui", log)
	g := NewGUI(ch, log)
	g.Register(ctx)
	return g, ch, logs
}

// recordConn stays open until closed and records what is written to it.
type recordConn struct {
	mu     sync.Mutex
	writes []string
	closed chan struct{}
	once   sync.Once
}

func (c *recordConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, websocket.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *recordConn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *recordConn) Ping(context.Context) error { return nil }
func (c *recordConn) Close(string) error         { return c.CloseNow() }

func (c *recordConn) CloseNow() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *recordConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type recordDialer struct{ conn *recordConn }

func (d recordDialer) Dial(context.Context, string) (websocket.Conn, error) {
	return d.conn, nil
}

func TestSetTime(t *testing.T) {
	g, ch, _ := newGUI(t)
	assert.Nil(t, g.LastTime())

	ch.HandleFrame([]byte(`{"type":"cmd","data":{"cmd":"set_time","args":[],"kwargs":{"time":42}},"from":"server","target":["gui"]}`))
	assert.Equal(t, float64(42), g.LastTime())
}

func TestSetTimeWithoutTime(t *testing.T) {
	g, ch, logs := newGUI(t)

	ch.HandleFrame([]byte(`{"type":"cmd","data":{"cmd":"set_time"},"from":"server","target":["gui"]}`))
	assert.Nil(t, g.LastTime())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("command failed").Len())
}

func TestMessage(t *testing.T) {
	g, ch, _ := newGUI(t)
	_, ok := g.LastMessage()
	assert.False(t, ok)

	ch.HandleFrame([]byte(`{"type":"message","data":"board online","from":"server","target":"gui"}`))
	env, ok := g.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "board online", env.Data)
	assert.Equal(t, "server", env.From)
}

func TestIdentifyWhileOffline(t *testing.T) {
	g, _, logs := newGUI(t)
	g.identify()
	assert.Equal(t, 1, logs.FilterMessage("identify failed").Len())
}

func TestIdentifyOnConnect(t *testing.T) {
	conn := &recordConn{closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, ch, logs := newGUIWith(t, ctx, recordDialer{conn})

	ch.Connect(ctx, "ws://fake")
	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Contains(t, conn.written()[0], `"cmd":"identify"`)
	assert.Equal(t, 1, logs.FilterMessage("identified").Len())
	ch.Disconnect()
}

func TestIdentifyStopsWithRegisterContext(t *testing.T) {
	conn := &recordConn{closed: make(chan struct{})}
	regCtx, stop := context.WithCancel(context.Background())
	stop()
	_, ch, logs := newGUIWith(t, regCtx, recordDialer{conn})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch.Connect(runCtx, "ws://fake")

	require.Eventually(t, func() bool { return logs.FilterMessage("identify failed").Len() == 1 }, 2*time.Second, time.Millisecond)
	failed := logs.FilterMessage("identify failed").All()[0]
	err, _ := failed.ContextMap()["error"].(string)
	assert.Contains(t, err, context.Canceled.Error())
	assert.Empty(t, conn.written())
	ch.Disconnect()
}
