// Package protocol defines the envelope exchanged over the command channel
// and the constructors and codec for it.
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	TypeMessage = "message"
	TypeCmd     = "cmd"

	// CmdDisconnect is the built-in command that closes the active socket.
	CmdDisconnect = "disconnect"

	DefaultTarget = "server"
)

// Envelope is the unit of communication on the wire. Type is the tag for
// Data: a "cmd" envelope carries a CommandPayload, anything else carries the
// generically decoded JSON value.
type Envelope struct {
	Type   string `json:"type"`
	Data   any    `json:"data"`
	From   string `json:"from"`
	Target Target `json:"target"`
}

// CommandPayload is the data of a "cmd" envelope.
type CommandPayload struct {
	Cmd    string         `json:"cmd"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Command returns the command payload of a "cmd" envelope.
func (e Envelope) Command() (CommandPayload, bool) {
	if e.Type != TypeCmd {
		return CommandPayload{}, false
	}
	switch p := e.Data.(type) {
	case CommandPayload:
		return p, true
	case *CommandPayload:
		if p == nil {
			return CommandPayload{}, false
		}
		return *p, true
	}
	return CommandPayload{}, false
}

// Kwarg returns a keyword argument by name.
func (p CommandPayload) Kwarg(name string) (any, bool) {
	v, ok := p.Kwargs[name]
	return v, ok
}

// Bind decodes the keyword arguments into v, which must be a pointer.
func (p CommandPayload) Bind(v any) error {
	raw, err := json.Marshal(p.Kwargs)
	if err != nil {
		return fmt.Errorf("marshal kwargs: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bind kwargs for %s: %w", p.Cmd, err)
	}
	return nil
}

func (p *CommandPayload) normalize() {
	if p.Args == nil {
		p.Args = []any{}
	}
	if p.Kwargs == nil {
		p.Kwargs = map[string]any{}
	}
}

// Target is the ordered list of recipients. On the wire it is always an
// array; a bare string is accepted when decoding.
type Target []string

// Targets builds a Target, falling back to DefaultTarget when empty.
func Targets(names ...string) Target {
	if len(names) == 0 {
		return Target{DefaultTarget}
	}
	t := make(Target, len(names))
	copy(t, names)
	return t
}

func (t Target) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

func (t *Target) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*t = Target{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("target must be a string or a list of strings: %w", err)
	}
	if many == nil {
		many = []string{}
	}
	*t = Target(many)
	return nil
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var wire struct {
		Type   string          `json:"type"`
		Data   json.RawMessage `json:"data"`
		From   string          `json:"from"`
		Target *Target         `json:"target"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	out := Envelope{Type: wire.Type, From: wire.From, Target: Target{}}
	if wire.Target != nil {
		out.Target = *wire.Target
	}

	if wire.Type == TypeCmd {
		var p CommandPayload
		if len(wire.Data) == 0 || string(wire.Data) == "null" {
			return ErrMissingCommand
		}
		if err := json.Unmarshal(wire.Data, &p); err != nil {
			return fmt.Errorf("command payload: %w", err)
		}
		if p.Cmd == "" {
			return ErrMissingCommand
		}
		p.normalize()
		out.Data = p
	} else if len(wire.Data) > 0 {
		var v any
		if err := json.Unmarshal(wire.Data, &v); err != nil {
			return err
		}
		out.Data = v
	}

	*e = out
	return nil
}
