package frames

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	kind    string // main, frame, broadcast
	frameID id.FrameID
	msg     []byte
}

type fakePage struct {
	id  id.PageID
	url string

	mu         sync.Mutex
	deliveries []delivery
	delivered  chan delivery
}

func newFakePage(url string) *fakePage {
	return &fakePage{id: id.NewPageID(), url: url, delivered: make(chan delivery, 64)}
}

func (p *fakePage) ID() id.PageID { return p.id }
func (p *fakePage) URL() string   { return p.url }

func (p *fakePage) record(d delivery) error {
	p.mu.Lock()
	p.deliveries = append(p.deliveries, d)
	p.mu.Unlock()
	p.delivered <- d
	return nil
}

func (p *fakePage) DeliverToMain(msg []byte) error {
	return p.record(delivery{kind: "main", frameID: id.MainFrame, msg: msg})
}

func (p *fakePage) DeliverToFrame(frameID id.FrameID, msg []byte) error {
	return p.record(delivery{kind: "frame", frameID: frameID, msg: msg})
}

func (p *fakePage) Broadcast(msg []byte) error {
	return p.record(delivery{kind: "broadcast", msg: msg})
}

func (p *fakePage) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-p.delivered:
		return d
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for delivery")
		return delivery{}
	}
}

func (p *fakePage) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deliveries)
}

type call struct {
	method string
	params any
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []call
	fn    func(ctx context.Context, method string, params any) (json.RawMessage, error)
}

func (c *fakeCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call{method: method, params: params})
	fn := c.fn
	c.mu.Unlock()
	if fn == nil {
		return json.RawMessage("null"), nil
	}
	return fn(ctx, method, params)
}

func (c *fakeCaller) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, cl := range c.calls {
		out[i] = cl.method
	}
	return out
}

func requestJSON(t *testing.T, frameID, messageID, method string, params any) []byte {
	t.Helper()
	msg := map[string]any{"type": TypeRequest, "method": method, "params": params}
	if frameID != "" {
		msg["frameId"] = frameID
	}
	if messageID != "" {
		msg["messageId"] = messageID
	}
	raw, err := sonic.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func decodeResponse(t *testing.T, raw []byte) Response {
	t.Helper()
	var resp Response
	require.NoError(t, sonic.Unmarshal(raw, &resp))
	return resp
}
