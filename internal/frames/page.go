package frames

import (
	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
)

// Page is a displayed page whose frames talk to the bridge. Implementations
// must be safe for concurrent use.
type Page interface {
	ID() id.PageID
	URL() string
	// DeliverToMain sends a message to the top frame only
	DeliverToMain(msg []byte) error
	// DeliverToFrame sends a message that only frameID accepts
	DeliverToFrame(frameID id.FrameID, msg []byte) error
	// Broadcast sends a message to every frame of the page
	Broadcast(msg []byte) error
}

// Binding ties a session to the frame that established it
type Binding struct {
	Page    Page
	FrameID id.FrameID
}

// Deliver sends msg to the bound frame
func (b *Binding) Deliver(msg []byte) error {
	if b.FrameID.IsMain() {
		return b.Page.DeliverToMain(msg)
	}
	return b.Page.DeliverToFrame(b.FrameID, msg)
}
