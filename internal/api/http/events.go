package http

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/events"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	eventBuffer    = 64
	keepAliveEvery = 15 * time.Second
)

var errSlowSubscriber = errors.New("event subscriber is not keeping up")

// Events streams typed engine events to a UI as server-sent events. The
// first frame is a "listening" event, sent once the subscription is live.
func (h *Handlers) Events(c *gin.Context) {
	ch := make(chan events.Event, eventBuffer)
	listener := events.Func(func(e events.Event) error {
		select {
		case ch <- e:
			return nil
		default:
			return errSlowSubscriber
		}
	})

	h.engine.AddListener(listener)
	defer h.engine.RemoveListener(listener)

	h.logger.Debug("Event subscriber attached", zap.String("client", c.ClientIP()))
	defer h.logger.Debug("Event subscriber detached", zap.String("client", c.ClientIP()))

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("listening", "{}")
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case e := <-ch:
			c.SSEvent(e.Type(), string(eventData(e)))
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", "{}")
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// eventData returns the payload the bundle emitted, or a minimal rendering
// of the typed fields when it is missing
func eventData(e events.Event) json.RawMessage {
	var raw json.RawMessage
	var fallback map[string]string

	switch ev := e.(type) {
	case events.ConnectRequest:
		raw = ev.Raw
		fallback = map[string]string{"id": ev.ID, "dAppUrl": ev.DAppURL, "manifestUrl": ev.ManifestURL}
	case events.TransactionRequest:
		raw = ev.Raw
		fallback = map[string]string{"id": ev.ID, "sessionId": ev.SessionID, "dAppUrl": ev.DAppURL}
	case events.SignDataRequest:
		raw = ev.Raw
		fallback = map[string]string{"id": ev.ID, "sessionId": ev.SessionID, "dAppUrl": ev.DAppURL}
	case events.Disconnect:
		raw = ev.Raw
		fallback = map[string]string{"sessionId": ev.SessionID}
	}

	if len(raw) > 0 {
		return raw
	}
	out, err := sonic.Marshal(fallback)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}
