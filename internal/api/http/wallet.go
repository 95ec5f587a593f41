package http

import (
	"net/http"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// ListWallets returns the wallets known to the bundle
func (h *Handlers) ListWallets(c *gin.Context) {
	wallets, err := h.wallet.GetWallets(c.Request.Context())
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "wallets": wallets})
}

// ListSessions returns the active dApp sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.wallet.ListSessions(c.Request.Context())
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

// DisconnectSession ends a dApp session. Bound pages learn about it from
// the disconnect event the bundle emits.
func (h *Handlers) DisconnectSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := utils.ValidateID(sessionID, "session id", true); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.wallet.DisconnectSession(c.Request.Context(), sessionID); err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleTonConnectURL feeds a tc:// or universal link to the bundle
func (h *Handlers) HandleTonConnectURL(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.wallet.HandleTonConnectURL(c.Request.Context(), req.URL); err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
