package frames

import (
	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/events"
	"go.uber.org/zap"
)

// Hub is an engine event listener that forwards session events to the
// page bound to the session.
type Hub struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHub creates a hub over registry
func NewHub(registry *Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{registry: registry, logger: logger}
}

// HandleEvent broadcasts a disconnect to every frame of the bound page and
// forgets the session. Other events are for the wallet UI, not for pages.
func (h *Hub) HandleEvent(e events.Event) error {
	d, ok := e.(events.Disconnect)
	if !ok {
		return nil
	}

	b, ok := h.registry.Lookup(d.SessionID)
	if !ok {
		h.logger.Debug("No frame bound to disconnected session", zap.String("session_id", d.SessionID))
		return nil
	}
	defer h.registry.Forget(d.SessionID)

	msg, err := EncodeDisconnectEvent(d.SessionID)
	if err != nil {
		return err
	}
	if err := b.Page.Broadcast(msg); err != nil {
		return err
	}

	h.logger.Info("Broadcast disconnect to page",
		zap.String("session_id", d.SessionID),
		zap.String("page_id", b.Page.ID().String()))
	return nil
}
