package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	method string
	params any
	result string
	err    error
}

func (f *fakeCaller) Call(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.method = method
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.result), nil
}

func TestGetWallets(t *testing.T) {
	caller := &fakeCaller{result: `[{"address":"EQabc","name":"Main","version":"v5r1"}]`}
	wallets, err := New(caller).GetWallets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, MethodGetWallets, caller.method)
	require.Len(t, wallets, 1)
	assert.Equal(t, Wallet{Address: "EQabc", Name: "Main", Version: "v5r1"}, wallets[0])

	caller.result = "null"
	wallets, err = New(caller).GetWallets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, wallets)
}

func TestArgumentValidation(t *testing.T) {
	caller := &fakeCaller{result: "null"}
	c := New(caller)
	ctx := context.Background()

	_, err := c.AddWallet(ctx, AddWalletRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, c.RemoveWallet(ctx, ""), ErrInvalidArgument)
	assert.ErrorIs(t, c.HandleTonConnectURL(ctx, ""), ErrInvalidArgument)
	_, err = c.ApproveConnectRequest(ctx, ConnectApproval{RequestID: "r"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, c.RejectTransactionRequest(ctx, "", "no"), ErrInvalidArgument)
	assert.ErrorIs(t, c.DisconnectSession(ctx, ""), ErrInvalidArgument)

	assert.Empty(t, caller.method, "bundle must not be called for invalid arguments")
}

func TestRejectIncludesReason(t *testing.T) {
	caller := &fakeCaller{result: "null"}
	require.NoError(t, New(caller).RejectConnectRequest(context.Background(), "req-1", "user declined"))

	assert.Equal(t, MethodRejectConnectRequest, caller.method)
	assert.Equal(t, map[string]any{"requestId": "req-1", "reason": "user declined"}, caller.params)
}

func TestApproveConnectReturnsSession(t *testing.T) {
	caller := &fakeCaller{result: `{"sessionId":"s-9"}`}
	res, err := New(caller).ApproveConnectRequest(context.Background(), ConnectApproval{RequestID: "r", WalletAddress: "EQ"})
	require.NoError(t, err)
	assert.Equal(t, "s-9", res.SessionID)
}

func TestCallerErrorsPassThrough(t *testing.T) {
	boom := errors.New("bridge error in init: bad")
	caller := &fakeCaller{err: boom}
	assert.ErrorIs(t, New(caller).Init(context.Background(), "testnet", ""), boom)
	assert.Equal(t, map[string]any{"network": "testnet"}, caller.params)
}

func TestDecodeSessions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `[{"sessionId":"a"},{"sessionId":"b"}]`, []string{"a", "b"}},
		{"wrapped", `{"sessions":[{"sessionId":"c"}]}`, []string{"c"}},
		{"null", `null`, nil},
		{"empty wrapper", `{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := DecodeSessions(json.RawMessage(tt.raw))
			require.NoError(t, err)
			var ids []string
			for _, s := range sessions {
				ids = append(ids, s.SessionID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := DecodeSessions(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

func TestSessionTimestamps(t *testing.T) {
	sessions, err := DecodeSessions(json.RawMessage(`[
		{"sessionId":"old","createdAt":1700000000000},
		{"sessionId":"new","createdAt":"2024-05-01T10:00:00Z"},
		{"sessionId":"none"}
	]`))
	require.NoError(t, err)

	assert.Equal(t, time.UnixMilli(1700000000000), sessions[0].CreatedAt.Time)
	assert.True(t, sessions[2].CreatedAt.IsZero())

	latest, ok := MostRecent(sessions)
	require.True(t, ok)
	assert.Equal(t, "new", latest.SessionID)

	_, ok = MostRecent(nil)
	assert.False(t, ok)
}
