// Package handlers wires server commands to the GUI peer's state.
package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wscomsrv/wscomsrv/internal/channel"
	"github.com/wscomsrv/wscomsrv/internal/protocol"
)

const identifyTimeout = 5 * time.Second

// GUI holds what the server last pushed to this peer.
type GUI struct {
	ch  *channel.Channel
	log *zap.Logger
	ctx context.Context // bounds the sends made on connect

	mu          sync.Mutex
	lastTime    any
	lastMessage *protocol.Envelope
}

func NewGUI(ch *channel.Channel, log *zap.Logger) *GUI {
	return &GUI{ch: ch, log: log.Named("gui"), ctx: context.Background()}
}

// Register binds the GUI handlers onto the channel and announces the peer
// on every connect. Pass the context the channel runs under: once it is
// done, identify sends stop.
func (g *GUI) Register(ctx context.Context) {
	g.ctx = ctx
	g.ch.OnConnect(g.identify)
	g.ch.RegisterCommand("set_time", g.handleSetTime)
	g.ch.RegisterType(protocol.TypeMessage, g.handleMessage)
}

func (g *GUI) LastTime() any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastTime
}

func (g *GUI) LastMessage() (protocol.Envelope, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastMessage == nil {
		return protocol.Envelope{}, false
	}
	return *g.lastMessage, true
}

func (g *GUI) identify() {
	ctx, cancel := context.WithTimeout(g.ctx, identifyTimeout)
	defer cancel()
	name := g.ch.Sender()
	if err := g.ch.SendCommand(ctx, "identify", nil, map[string]any{"name": name}); err != nil {
		g.log.Warn("identify failed", zap.Error(err))
		return
	}
	g.log.Info("identified", zap.String("name", name))
}

// --- handlers ---

func (g *GUI) handleSetTime(env protocol.Envelope) error {
	p, _ := env.Command()
	t, ok := p.Kwarg("time")
	if !ok {
		return fmt.Errorf("set_time from %s: missing time", env.From)
	}
	g.mu.Lock()
	g.lastTime = t
	g.mu.Unlock()
	g.log.Info("time set", zap.Any("time", t), zap.String("from", env.From))
	return nil
}

func (g *GUI) handleMessage(env protocol.Envelope) error {
	g.mu.Lock()
	g.lastMessage = &env
	g.mu.Unlock()
	g.log.Info("message", zap.String("from", env.From), zap.Any("data", env.Data))
	return nil
}
