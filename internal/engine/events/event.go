package events

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/bytedance/sonic"
)

// Event type tags posted by the bundle
const (
	TypeConnectRequest     = "connectRequest"
	TypeTransactionRequest = "transactionRequest"
	TypeSignDataRequest    = "signDataRequest"
	TypeDisconnect         = "disconnect"
)

// Event is one of ConnectRequest, TransactionRequest, SignDataRequest, or
// Disconnect.
type Event interface {
	Type() string
	isEvent()
}

// ConnectRequest asks the user to approve a dApp connection
type ConnectRequest struct {
	ID          string
	DAppURL     string
	DAppName    string
	ManifestURL string
	Raw         json.RawMessage
}

// TransactionRequest asks the user to approve a transaction
type TransactionRequest struct {
	ID        string
	SessionID string
	DAppURL   string
	Raw       json.RawMessage
}

// SignDataRequest asks the user to sign arbitrary data
type SignDataRequest struct {
	ID        string
	SessionID string
	DAppURL   string
	Raw       json.RawMessage
}

// Disconnect reports that a session ended
type Disconnect struct {
	SessionID string
	Raw       json.RawMessage
}

func (ConnectRequest) Type() string     { return TypeConnectRequest }
func (TransactionRequest) Type() string { return TypeTransactionRequest }
func (SignDataRequest) Type() string    { return TypeSignDataRequest }
func (Disconnect) Type() string         { return TypeDisconnect }

func (ConnectRequest) isEvent()     {}
func (TransactionRequest) isEvent() {}
func (SignDataRequest) isEvent()    {}
func (Disconnect) isEvent()         {}

// wirePayload is the union of fields the bundle sends across event types.
// Identifiers may arrive as strings or numbers.
type wirePayload struct {
	ID          json.RawMessage `json:"id"`
	SessionID   json.RawMessage `json:"sessionId"`
	DAppURL     string          `json:"dAppUrl"`
	ManifestURL string          `json:"manifestUrl"`
	Preview     struct {
		Manifest struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"manifest"`
	} `json:"preview"`
}

// Parse maps a raw event into its typed variant. Internal and unknown types,
// undecodable payloads, and payloads missing their identifier yield false.
func Parse(eventType string, data json.RawMessage) (Event, bool) {
	switch eventType {
	case TypeConnectRequest, TypeTransactionRequest, TypeSignDataRequest, TypeDisconnect:
	default:
		return nil, false
	}

	var p wirePayload
	if len(data) == 0 || sonic.Unmarshal(data, &p) != nil {
		return nil, false
	}
	raw := append(json.RawMessage(nil), data...)

	switch eventType {
	case TypeConnectRequest:
		reqID := identifier(p.ID)
		if reqID == "" {
			return nil, false
		}
		dappURL := p.DAppURL
		if dappURL == "" {
			dappURL = p.Preview.Manifest.URL
		}
		return ConnectRequest{
			ID:          reqID,
			DAppURL:     dappURL,
			DAppName:    p.Preview.Manifest.Name,
			ManifestURL: p.ManifestURL,
			Raw:         raw,
		}, true

	case TypeTransactionRequest:
		reqID := identifier(p.ID)
		if reqID == "" {
			return nil, false
		}
		return TransactionRequest{ID: reqID, SessionID: identifier(p.SessionID), DAppURL: p.DAppURL, Raw: raw}, true

	case TypeSignDataRequest:
		reqID := identifier(p.ID)
		if reqID == "" {
			return nil, false
		}
		return SignDataRequest{ID: reqID, SessionID: identifier(p.SessionID), DAppURL: p.DAppURL, Raw: raw}, true

	default:
		sessionID := identifier(p.SessionID)
		if sessionID == "" {
			sessionID = identifier(p.ID)
		}
		if sessionID == "" {
			return nil, false
		}
		return Disconnect{SessionID: sessionID, Raw: raw}, true
	}
}

// identifier renders a JSON string or number as a string; anything else is
// treated as absent.
func identifier(raw json.RawMessage) string {
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
		if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
			return ""
		}
		return string(raw)
	}
	return ""
}
