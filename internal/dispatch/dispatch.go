// Package dispatch routes decoded envelopes to registered handlers, first by
// envelope type and, for "cmd" envelopes, by command name.
package dispatch

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wscomsrv/wscomsrv/internal/protocol"
)

// Handler receives the full envelope so it keeps access to From and Target.
// A returned error is logged; it never reaches the connection.
type Handler func(env protocol.Envelope) error

// registry is a name → handler map. Registration may come from any
// goroutine; lookups happen on the connection's reader goroutine.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() registry {
	return registry{handlers: make(map[string]Handler)}
}

func (r *registry) register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

func (r *registry) lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Types is the top-level dispatcher keyed by envelope type.
type Types struct {
	reg registry
	log *zap.Logger
}

func NewTypes(log *zap.Logger) *Types {
	return &Types{reg: newRegistry(), log: log}
}

// Register inserts or replaces the handler for a type. Last writer wins.
func (t *Types) Register(name string, h Handler) {
	t.reg.register(name, h)
	t.log.Debug("type handler registered", zap.String("type", name))
}

func (t *Types) Has(name string) bool {
	_, ok := t.reg.lookup(name)
	return ok
}

// Names lists the registered types in sorted order.
func (t *Types) Names() []string { return t.reg.names() }

// Dispatch runs the handler for env.Type and reports whether one was found.
func (t *Types) Dispatch(env protocol.Envelope) bool {
	h, ok := t.reg.lookup(env.Type)
	if !ok {
		t.log.Warn("unknown message type",
			zap.String("type", env.Type),
			zap.Any("envelope", env),
		)
		return false
	}
	if err := h(env); err != nil {
		t.log.Error("type handler failed",
			zap.String("type", env.Type),
			zap.String("from", env.From),
			zap.Error(err),
		)
	}
	return true
}

// Commands is the second-level dispatcher bound to the "cmd" type.
type Commands struct {
	reg registry
	log *zap.Logger
}

func NewCommands(log *zap.Logger) *Commands {
	return &Commands{reg: newRegistry(), log: log}
}

// Register inserts or replaces the handler for a command name, built-ins
// included.
func (c *Commands) Register(name string, h Handler) {
	c.reg.register(name, h)
	c.log.Debug("command handler registered", zap.String("cmd", name))
}

func (c *Commands) Has(name string) bool {
	_, ok := c.reg.lookup(name)
	return ok
}

func (c *Commands) Names() []string { return c.reg.names() }

// Handle adapts Dispatch to a Handler so it can be registered as a type.
func (c *Commands) Handle(env protocol.Envelope) error {
	c.Dispatch(env)
	return nil
}

// Dispatch runs the handler for the envelope's command name and reports
// whether one ran.
func (c *Commands) Dispatch(env protocol.Envelope) bool {
	p, ok := env.Command()
	if !ok {
		c.log.Warn("envelope carries no command payload",
			zap.String("type", env.Type),
			zap.String("from", env.From),
		)
		return false
	}
	h, ok := c.reg.lookup(p.Cmd)
	if !ok {
		c.log.Warn("unknown command",
			zap.String("cmd", p.Cmd),
			zap.String("from", env.From),
		)
		return false
	}
	if err := h(env); err != nil {
		c.log.Error("command failed",
			zap.String("cmd", p.Cmd),
			zap.String("from", env.From),
			zap.Error(err),
		)
		return true
	}
	c.log.Debug("command handled", zap.String("cmd", p.Cmd), zap.String("from", env.From))
	return true
}
