// Package wallet is a typed client for the method surface of the wallet
// bundle. It only shapes parameters and results; every decision is made
// inside the bundle.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Bundle method names
const (
	MethodInit                      = "init"
	MethodAddWallet                 = "addWallet"
	MethodGetWallets                = "getWallets"
	MethodRemoveWallet              = "removeWallet"
	MethodHandleTonConnectURL       = "handleTonConnectUrl"
	MethodApproveConnectRequest     = "approveConnectRequest"
	MethodRejectConnectRequest      = "rejectConnectRequest"
	MethodApproveTransactionRequest = "approveTransactionRequest"
	MethodRejectTransactionRequest  = "rejectTransactionRequest"
	MethodApproveSignDataRequest    = "approveSignDataRequest"
	MethodRejectSignDataRequest     = "rejectSignDataRequest"
	MethodListSessions              = "listSessions"
	MethodDisconnectSession         = "disconnectSession"
)

// Caller performs a correlated bundle call. *engine.Engine satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Wallet is a wallet known to the bundle
type Wallet struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Network   string `json:"network,omitempty"`
}

// Session is an established dApp connection
type Session struct {
	SessionID     string `json:"sessionId"`
	DAppName      string `json:"dAppName,omitempty"`
	DAppURL       string `json:"dAppUrl,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	CreatedAt     Millis `json:"createdAt,omitempty"`
	LastActivity  Millis `json:"lastActivity,omitempty"`
}

// Millis is a timestamp carried as milliseconds since the epoch or as an
// RFC 3339 string
type Millis struct {
	time.Time
}

// UnmarshalJSON accepts a number of milliseconds or an RFC 3339 string
func (m *Millis) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		m.Time = time.Time{}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := sonic.Unmarshal(data, &str); err != nil {
			return err
		}
		if str == "" {
			m.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
		m.Time = t
		return nil
	}

	var ms float64
	if err := sonic.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	m.Time = time.UnixMilli(int64(ms))
	return nil
}

// MarshalJSON writes milliseconds since the epoch
func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprint(m.UnixMilli())), nil
}

// AddWalletRequest imports a wallet from a mnemonic
type AddWalletRequest struct {
	Mnemonic []string `json:"mnemonic"`
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	Network  string   `json:"network,omitempty"`
}

// ConnectApproval approves a pending connect request for a wallet
type ConnectApproval struct {
	RequestID     string `json:"requestId"`
	WalletAddress string `json:"walletAddress"`
}

// ConnectResult is returned when a connection is approved
type ConnectResult struct {
	SessionID string `json:"sessionId,omitempty"`
}

// TransactionResult carries the signed message boc
type TransactionResult struct {
	SignedBoc string `json:"signedBoc,omitempty"`
}

// SignDataResult carries the produced signature
type SignDataResult struct {
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ErrInvalidArgument is returned before calling the bundle when a required
// argument is missing
var ErrInvalidArgument = errors.New("wallet: invalid argument")

// Client calls the bundle through a Caller
type Client struct {
	caller Caller
}

// New creates a client
func New(caller Caller) *Client {
	return &Client{caller: caller}
}

// Init configures the bundle for a network
func (c *Client) Init(ctx context.Context, network, apiURL string) error {
	params := map[string]any{"network": network}
	if apiURL != "" {
		params["apiUrl"] = apiURL
	}
	return c.call(ctx, MethodInit, params, nil)
}

// AddWallet imports a wallet
func (c *Client) AddWallet(ctx context.Context, req AddWalletRequest) (Wallet, error) {
	if len(req.Mnemonic) == 0 {
		return Wallet{}, fmt.Errorf("%w: mnemonic is required", ErrInvalidArgument)
	}
	var w Wallet
	err := c.call(ctx, MethodAddWallet, req, &w)
	return w, err
}

// GetWallets lists the wallets the bundle holds
func (c *Client) GetWallets(ctx context.Context) ([]Wallet, error) {
	wallets := []Wallet{}
	err := c.call(ctx, MethodGetWallets, nil, &wallets)
	return wallets, err
}

// RemoveWallet deletes a wallet by address
func (c *Client) RemoveWallet(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidArgument)
	}
	return c.call(ctx, MethodRemoveWallet, map[string]any{"address": address}, nil)
}

// HandleTonConnectURL hands a tc:// or universal link to the bundle, which
// answers with a connect request event
func (c *Client) HandleTonConnectURL(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidArgument)
	}
	return c.call(ctx, MethodHandleTonConnectURL, map[string]any{"url": url}, nil)
}

// ApproveConnectRequest approves a connect request
func (c *Client) ApproveConnectRequest(ctx context.Context, approval ConnectApproval) (ConnectResult, error) {
	if approval.RequestID == "" || approval.WalletAddress == "" {
		return ConnectResult{}, fmt.Errorf("%w: request id and wallet address are required", ErrInvalidArgument)
	}
	var res ConnectResult
	err := c.call(ctx, MethodApproveConnectRequest, approval, &res)
	return res, err
}

// RejectConnectRequest rejects a connect request
func (c *Client) RejectConnectRequest(ctx context.Context, requestID, reason string) error {
	return c.reject(ctx, MethodRejectConnectRequest, requestID, reason)
}

// ApproveTransactionRequest signs and sends a requested transaction
func (c *Client) ApproveTransactionRequest(ctx context.Context, requestID string) (TransactionResult, error) {
	if requestID == "" {
		return TransactionResult{}, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	var res TransactionResult
	err := c.call(ctx, MethodApproveTransactionRequest, map[string]any{"requestId": requestID}, &res)
	return res, err
}

// RejectTransactionRequest rejects a transaction request
func (c *Client) RejectTransactionRequest(ctx context.Context, requestID, reason string) error {
	return c.reject(ctx, MethodRejectTransactionRequest, requestID, reason)
}

// ApproveSignDataRequest signs requested data
func (c *Client) ApproveSignDataRequest(ctx context.Context, requestID string) (SignDataResult, error) {
	if requestID == "" {
		return SignDataResult{}, fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	var res SignDataResult
	err := c.call(ctx, MethodApproveSignDataRequest, map[string]any{"requestId": requestID}, &res)
	return res, err
}

// RejectSignDataRequest rejects a sign data request
func (c *Client) RejectSignDataRequest(ctx context.Context, requestID, reason string) error {
	return c.reject(ctx, MethodRejectSignDataRequest, requestID, reason)
}

// ListSessions returns the established sessions
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var raw json.RawMessage
	if err := c.call(ctx, MethodListSessions, nil, &raw); err != nil {
		return nil, err
	}
	return DecodeSessions(raw)
}

// DisconnectSession ends a session
func (c *Client) DisconnectSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}
	return c.call(ctx, MethodDisconnectSession, map[string]any{"sessionId": sessionID}, nil)
}

// DecodeSessions accepts a bare array or an object wrapping it under
// "sessions"
func DecodeSessions(raw json.RawMessage) ([]Session, error) {
	sessions := []Session{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return sessions, nil
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Sessions []Session `json:"sessions"`
		}
		if err := sonic.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode sessions: %w", err)
		}
		if wrapped.Sessions != nil {
			sessions = wrapped.Sessions
		}
		return sessions, nil
	}
	if err := sonic.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// MostRecent returns the session created last
func MostRecent(sessions []Session) (Session, bool) {
	if len(sessions) == 0 {
		return Session{}, false
	}
	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.CreatedAt.After(best.CreatedAt.Time) {
			best = s
		}
	}
	return best, true
}

func (c *Client) reject(ctx context.Context, method, requestID, reason string) error {
	if requestID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	params := map[string]any{"requestId": requestID}
	if reason != "" {
		params["reason"] = reason
	}
	return c.call(ctx, method, params, nil)
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := c.caller.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = raw
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
