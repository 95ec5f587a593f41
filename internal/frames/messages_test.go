package frames

import (
	"testing"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Request
		wantErr error
	}{
		{
			name: "embedded frame",
			raw:  `{"type":"TONCONNECT_BRIDGE_REQUEST","frameId":"f-1","messageId":"7","method":"send","params":{"a":1}}`,
			want: Request{FrameID: "f-1", MessageID: "7", Method: "send", Params: []byte(`{"a":1}`)},
		},
		{
			name: "missing frame id means main",
			raw:  `{"type":"TONCONNECT_BRIDGE_REQUEST","messageId":3,"method":"restoreConnection"}`,
			want: Request{FrameID: id.MainFrame, MessageID: "3", Method: "restoreConnection"},
		},
		{
			name:    "missing message id",
			raw:     `{"type":"TONCONNECT_BRIDGE_REQUEST","frameId":"main","method":"connect"}`,
			wantErr: ErrMissingMessageID,
		},
		{
			name:    "empty message id",
			raw:     `{"type":"TONCONNECT_BRIDGE_REQUEST","messageId":"","method":"connect"}`,
			wantErr: ErrMissingMessageID,
		},
		{
			name:    "other message type",
			raw:     `{"type":"TONCONNECT_BRIDGE_RESPONSE","messageId":"1"}`,
			wantErr: ErrUnexpectedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeRequest([]byte(`{"type":"TONCONNECT_BRIDGE_REQUEST","messageId":"1"}`))
	assert.Error(t, err)
	_, err = DecodeRequest([]byte(`garbage`))
	assert.Error(t, err)
}

func TestEncodeResponse(t *testing.T) {
	raw, err := EncodeResponse(Request{FrameID: "f-2", MessageID: "9"}, true, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"TONCONNECT_BRIDGE_RESPONSE","frameId":"f-2","messageId":"9","success":true,"payload":{"ok":true}}`, string(raw))

	raw, err = EncodeResponse(Request{FrameID: id.MainFrame, MessageID: "1"}, true, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"TONCONNECT_BRIDGE_RESPONSE","frameId":"main","messageId":"1","success":true,"payload":null}`, string(raw))
}

func TestEncodeDisconnectEvent(t *testing.T) {
	raw, err := EncodeDisconnectEvent("s-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"TONCONNECT_BRIDGE_EVENT","event":{"event":"disconnect","payload":{"sessionId":"s-1"}}}`, string(raw))
}
