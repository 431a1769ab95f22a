package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame     = errors.New("empty frame")
	ErrMissingType    = errors.New("envelope has no type")
	ErrMissingCommand = errors.New("cmd envelope has no command name")
)

// DecodeError reports an inbound frame that could not be parsed into an
// Envelope. Raw holds the offending text for logging.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Unroutable reports whether Raw is well-formed JSON that still does not
// name a route: no type, a cmd without a command name, or fields of the
// wrong shape.
func (e *DecodeError) Unroutable() bool {
	return e.Raw != "" && json.Valid([]byte(e.Raw))
}

// SimpleMessage builds an envelope of the given type. An empty typ means
// TypeMessage and an empty target means DefaultTarget.
func SimpleMessage(sender, typ string, data any, target ...string) Envelope {
	if typ == "" {
		typ = TypeMessage
	}
	return Envelope{
		Type:   typ,
		Data:   data,
		From:   sender,
		Target: Targets(target...),
	}
}

// CommandMessage builds a "cmd" envelope. Nil args and kwargs are sent as
// an empty list and an empty object.
//
// Values survive the wire as JSON: after Decode, numbers in args and kwargs
// are float64 and structs are map[string]any. Use CommandPayload.Bind for
// typed kwargs.
func CommandMessage(cmd, sender string, args []any, kwargs map[string]any, target ...string) Envelope {
	p := CommandPayload{Cmd: cmd, Args: args, Kwargs: kwargs}
	p.normalize()
	return SimpleMessage(sender, TypeCmd, p, target...)
}

// EncodeSimple is SimpleMessage serialized to wire text.
func EncodeSimple(sender, typ string, data any, target ...string) (string, error) {
	b, err := Encode(SimpleMessage(sender, typ, data, target...))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeCommand is CommandMessage serialized to wire text.
func EncodeCommand(cmd, sender string, args []any, kwargs map[string]any, target ...string) (string, error) {
	b, err := Encode(CommandMessage(cmd, sender, args, kwargs, target...))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Encode(e Envelope) ([]byte, error) {
	if e.Type == "" {
		return nil, ErrMissingType
	}
	if e.Target == nil {
		e.Target = Targets()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return b, nil
}

// Decode parses wire text into an Envelope. Every failure is a *DecodeError.
func Decode(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{}, &DecodeError{Raw: "", Err: ErrEmptyFrame}
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, &DecodeError{Raw: string(raw), Err: err}
	}
	if e.Type == "" {
		return Envelope{}, &DecodeError{Raw: string(raw), Err: ErrMissingType}
	}
	return e, nil
}
