package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope is the unit exchanged in both directions. ID is nil only on
// error replies to frames whose id could not be recovered.
type Envelope struct {
	Type    string          `json:"type"`
	ID      *int64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ID returns a pointer to v for use as an envelope id.
func ID(v int64) *int64 {
	return &v
}

// HasID reports whether the envelope carries an id.
func (e *Envelope) HasID() bool {
	return e != nil && e.ID != nil
}

// IDValue returns the id, or -1 when the envelope has none.
func (e *Envelope) IDValue() int64 {
	if !e.HasID() {
		return -1
	}
	return *e.ID
}

// Bind decodes the payload into v. A missing or null payload leaves v untouched.
func (e *Envelope) Bind(v any) error {
	raw := bytes.TrimSpace(e.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEnvelope builds an envelope whose type is taken from the payload.
func NewEnvelope(id *int64, p Payload) (*Envelope, error) {
	msgType := p.MessageType()
	if msgType == "" {
		return nil, fmt.Errorf("payload %T has no message type", p)
	}
	raw, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return &Envelope{Type: msgType, ID: id, Payload: raw}, nil
}

// Encode serializes a payload into one text frame.
func Encode(id *int64, p Payload) ([]byte, error) {
	env, err := NewEnvelope(id, p)
	if err != nil {
		return nil, err
	}
	return Marshal(env)
}

// Marshal serializes an already built envelope.
func Marshal(env *Envelope) ([]byte, error) {
	data, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses one text frame. It fails with *DecodeError when the frame
// is not well-formed or lacks a type; the error carries the frame's id
// whenever that much could still be read.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed frame", ID: recoverID(data), Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing type", ID: env.ID}
	}
	return &env, nil
}

func recoverID(data []byte) *int64 {
	var probe struct {
		ID *int64 `json:"id"`
	}
	if err := sonic.Unmarshal(data, &probe); err != nil {
		return nil
	}
	return probe.ID
}
