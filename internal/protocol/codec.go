package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingType = errors.New("envelope without type")

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data into an envelope of the given type.
func Encode(eventType string, data any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", eventType, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode reads the envelope only; Data stays raw for the handler.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// DecodeData unmarshals the payload of env into v. A missing payload is an
// error so handlers never act on zero values.
func DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
