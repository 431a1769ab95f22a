// Package channel combines the socket, the codec and both dispatchers into
// the command channel an application registers its handlers on.
package channel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wscomsrv/wscomsrv/internal/dispatch"
	"github.com/wscomsrv/wscomsrv/internal/protocol"
	"github.com/wscomsrv/wscomsrv/internal/websocket"
)

// Channel is one command channel. Its registries outlive reconnects.
type Channel struct {
	sender   string
	client   *websocket.Client
	types    *dispatch.Types
	commands *dispatch.Commands
	log      *zap.Logger
}

// New builds a channel speaking as sender over client. The "cmd" type is
// routed to the command dispatcher and the "disconnect" command closes the
// socket; both can be overridden.
func New(client *websocket.Client, sender string, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	ch := &Channel{
		sender:   sender,
		client:   client,
		types:    dispatch.NewTypes(log.Named("dispatch")),
		commands: dispatch.NewCommands(log.Named("dispatch")),
		log:      log.Named("channel"),
	}
	ch.types.Register(protocol.TypeCmd, ch.commands.Handle)
	ch.commands.Register(protocol.CmdDisconnect, func(env protocol.Envelope) error {
		ch.log.Info("disconnect requested", zap.String("from", env.From))
		ch.client.Disconnect()
		return nil
	})
	client.OnFrame(ch.HandleFrame)
	return ch
}

func (c *Channel) Sender() string { return c.sender }

func (c *Channel) RegisterType(name string, h dispatch.Handler) {
	c.types.Register(name, h)
}

func (c *Channel) RegisterCommand(name string, h dispatch.Handler) {
	c.commands.Register(name, h)
}

// OnConnect registers fn to run after every (re)connect.
func (c *Channel) OnConnect(fn func()) {
	c.client.OnConnect(fn)
}

// Connect starts connecting to url in the background.
func (c *Channel) Connect(ctx context.Context, url string) {
	c.client.Connect(ctx, url)
}

// Run connects to url and blocks until ctx is done or the channel is
// disconnected.
func (c *Channel) Run(ctx context.Context, url string) {
	c.client.Run(ctx, url)
}

func (c *Channel) Disconnect() {
	c.client.Disconnect()
}

func (c *Channel) Connected() bool {
	return c.client.Connected()
}

// Send writes already serialized text.
func (c *Channel) Send(ctx context.Context, data string) error {
	return c.client.Send(ctx, data)
}

// SendMessage serializes and sends a simple message from this channel.
func (c *Channel) SendMessage(ctx context.Context, typ string, data any, target ...string) error {
	text, err := protocol.EncodeSimple(c.sender, typ, data, target...)
	if err != nil {
		return err
	}
	return c.Send(ctx, text)
}

// SendCommand serializes and sends a command from this channel.
func (c *Channel) SendCommand(ctx context.Context, cmd string, args []any, kwargs map[string]any, target ...string) error {
	text, err := protocol.EncodeCommand(cmd, c.sender, args, kwargs, target...)
	if err != nil {
		return err
	}
	if err := c.Send(ctx, text); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// HandleFrame decodes one inbound frame and dispatches it. Undecodable
// frames and handler panics are logged and dropped.
func (c *Channel) HandleFrame(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panicked",
				zap.Any("panic", r),
				zap.ByteString("payload", raw),
			)
		}
	}()

	c.log.Debug("received", zap.ByteString("payload", raw))
	env, err := protocol.Decode(raw)
	if err != nil {
		var de *protocol.DecodeError
		switch {
		case errors.As(err, &de) && de.Unroutable():
			c.log.Warn("dropping unroutable envelope", zap.String("payload", de.Raw), zap.Error(de.Err))
		case de != nil:
			c.log.Error("dropping undecodable frame", zap.String("payload", de.Raw), zap.Error(de.Err))
		default:
			c.log.Error("dropping undecodable frame", zap.ByteString("payload", raw), zap.Error(err))
		}
		return
	}
	c.types.Dispatch(env)
}
