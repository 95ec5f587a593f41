package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/bytedance/sonic"
)

// Message kinds posted by the script side
const (
	KindReady    = "ready"
	KindEvent    = "event"
	KindResponse = "response"
)

var errMalformedMessage = errors.New("malformed bridge message")

// Message is a decoded script-to-native message. It is one of
// ReadyMessage, EventMessage or ResponseMessage.
type Message interface {
	Kind() string
	isMessage()
}

// ReadyMessage echoes the configuration the bundle came up with
type ReadyMessage struct {
	Network string
	Version string
	Raw     json.RawMessage
}

// EventMessage carries an upstream event for the event router
type EventMessage struct {
	Type string
	Data json.RawMessage
}

// ResponseMessage settles a correlated call. Failed is set when the script
// reported an error; Error then holds its message.
type ResponseMessage struct {
	ID     id.CallID
	Result json.RawMessage
	Failed bool
	Error  string
}

func (ReadyMessage) Kind() string    { return KindReady }
func (EventMessage) Kind() string    { return KindEvent }
func (ResponseMessage) Kind() string { return KindResponse }

func (ReadyMessage) isMessage()    {}
func (EventMessage) isMessage()    {}
func (ResponseMessage) isMessage() {}

type wireMessage struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Network string          `json:"network"`
	Version string          `json:"version"`
}

// DecodeMessage parses one posted message. Anything that does not carry
// the fields its kind requires is rejected.
func DecodeMessage(raw []byte) (Message, error) {
	var w wireMessage
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedMessage, err)
	}

	switch w.Kind {
	case KindResponse:
		if w.ID == "" {
			return nil, fmt.Errorf("%w: response without id", errMalformedMessage)
		}
		msg := ResponseMessage{ID: id.CallID(w.ID), Result: w.Result}
		if present(w.Error) {
			msg.Failed = true
			msg.Error = errorText(w.Error)
		}
		return msg, nil

	case KindEvent:
		if w.Type == "" {
			return nil, fmt.Errorf("%w: event without type", errMalformedMessage)
		}
		return EventMessage{Type: w.Type, Data: w.Data}, nil

	case KindReady:
		return ReadyMessage{Network: w.Network, Version: w.Version, Raw: json.RawMessage(raw)}, nil

	case "":
		return nil, fmt.Errorf("%w: missing kind", errMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", errMalformedMessage, w.Kind)
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// errorText accepts a bare string, an object with a message, or any other
// JSON value as a last resort
func errorText(raw json.RawMessage) string {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "unknown error"
		}
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
