package frames

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/bytedance/sonic"
)

// Wire message types exchanged with the injected bridge script
const (
	TypeRequest  = "TONCONNECT_BRIDGE_REQUEST"
	TypeResponse = "TONCONNECT_BRIDGE_RESPONSE"
	TypeEvent    = "TONCONNECT_BRIDGE_EVENT"
)

var (
	// ErrMissingMessageID is returned for requests without a messageId
	ErrMissingMessageID = errors.New("frames: request has no messageId")

	// ErrUnexpectedType is returned for messages that are not requests
	ErrUnexpectedType = errors.New("frames: not a bridge request")

	errMissingMethod = errors.New("frames: request has no method")
)

// Request is a protocol request posted by a page frame
type Request struct {
	FrameID   id.FrameID
	MessageID string
	Method    string
	Params    json.RawMessage
}

// Response answers one Request. FrameID addresses the frame that asked so
// the page script can filter targeted deliveries.
type Response struct {
	Type      string          `json:"type"`
	FrameID   id.FrameID      `json:"frameId"`
	MessageID string          `json:"messageId"`
	Success   bool            `json:"success"`
	Payload   json.RawMessage `json:"payload"`
}

// Event is an unsolicited protocol event broadcast to every frame
type Event struct {
	Type  string       `json:"type"`
	Event EventPayload `json:"event"`
}

// EventPayload is the TON Connect wallet event
type EventPayload struct {
	Event   string         `json:"event"`
	ID      int64          `json:"id,omitempty"`
	Payload map[string]any `json:"payload"`
}

type wireRequest struct {
	Type      string          `json:"type"`
	FrameID   string          `json:"frameId"`
	MessageID json.RawMessage `json:"messageId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
}

// DecodeRequest parses a TONCONNECT_BRIDGE_REQUEST. An absent frameId means
// the main frame. Numeric message ids are normalized to their decimal form.
func DecodeRequest(raw []byte) (Request, error) {
	var w wireRequest
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return Request{}, fmt.Errorf("frames: malformed request: %w", err)
	}
	if w.Type != TypeRequest {
		return Request{}, fmt.Errorf("%w: %q", ErrUnexpectedType, w.Type)
	}

	messageID := messageIdentifier(w.MessageID)
	if messageID == "" {
		return Request{}, ErrMissingMessageID
	}
	if w.Method == "" {
		return Request{}, errMissingMethod
	}

	frameID := id.FrameID(w.FrameID)
	if frameID.IsMain() {
		frameID = id.MainFrame
	}

	var params json.RawMessage
	if len(w.Params) > 0 && string(w.Params) != "null" {
		params = w.Params
	}
	return Request{FrameID: frameID, MessageID: messageID, Method: w.Method, Params: params}, nil
}

// EncodeResponse builds the response for req
func EncodeResponse(req Request, success bool, payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return sonic.Marshal(Response{
		Type:      TypeResponse,
		FrameID:   req.FrameID,
		MessageID: req.MessageID,
		Success:   success,
		Payload:   payload,
	})
}

// EncodeDisconnectEvent builds the broadcast sent when a session ends
func EncodeDisconnectEvent(sessionID string) ([]byte, error) {
	return sonic.Marshal(Event{
		Type: TypeEvent,
		Event: EventPayload{
			Event:   "disconnect",
			Payload: map[string]any{"sessionId": sessionID},
		},
	})
}

func messageIdentifier(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if sonic.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if sonic.Unmarshal(raw, &n) != nil {
			return ""
		}
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
