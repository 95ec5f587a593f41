package engine

import (
	"testing"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "response with result",
			raw:  `{"kind":"response","id":"call_1","result":{"ok":true}}`,
			want: ResponseMessage{ID: id.CallID("call_1"), Result: []byte(`{"ok":true}`)},
		},
		{
			name: "response with string error",
			raw:  `{"kind":"response","id":"call_2","error":"wallet not found"}`,
			want: ResponseMessage{ID: id.CallID("call_2"), Failed: true, Error: "wallet not found"},
		},
		{
			name: "response with object error",
			raw:  `{"kind":"response","id":"call_3","error":{"message":"denied","code":300}}`,
			want: ResponseMessage{ID: id.CallID("call_3"), Failed: true, Error: "denied"},
		},
		{
			name: "response with null error succeeds",
			raw:  `{"kind":"response","id":"call_4","result":1,"error":null}`,
			want: ResponseMessage{ID: id.CallID("call_4"), Result: []byte(`1`)},
		},
		{
			name: "event",
			raw:  `{"kind":"event","type":"disconnect","data":{"sessionId":"s"}}`,
			want: EventMessage{Type: "disconnect", Data: []byte(`{"sessionId":"s"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeReadyMessage(t *testing.T) {
	raw := `{"kind":"ready","network":"testnet","version":"1.0.0"}`
	msg, err := DecodeMessage([]byte(raw))
	require.NoError(t, err)

	ready, ok := msg.(ReadyMessage)
	require.True(t, ok)
	assert.Equal(t, "testnet", ready.Network)
	assert.Equal(t, "1.0.0", ready.Version)
	assert.JSONEq(t, raw, string(ready.Raw))
}

func TestDecodeMalformedMessages(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"kind":"telemetry"}`,
		`{"kind":"response","result":1}`,
		`{"kind":"event","data":{}}`,
	} {
		_, err := DecodeMessage([]byte(raw))
		assert.ErrorIs(t, err, errMalformedMessage, raw)
	}
}
