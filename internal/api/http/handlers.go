package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/events"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/frames"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/utils"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Engine is the part of the wallet engine the HTTP surface drives
type Engine interface {
	wallet.Caller
	AddListener(events.Listener) events.AddResult
	RemoveListener(events.Listener) events.RemoveResult
	Ready() (engine.ReadyInfo, bool)
	Pending() int
}

// Options configures Handlers
type Options struct {
	Engine   Engine
	Client   *httpclient.Client
	Registry *frames.Registry
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger

	// WSEndpoint is the page transport path baked into the bridge script
	WSEndpoint   string
	ProxyEnabled bool
	MaxPageBytes int64
}

// Handlers contains the HTTP handlers of the bridge
type Handlers struct {
	engine   Engine
	wallet   *wallet.Client
	client   *httpclient.Client
	registry *frames.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	validator    *utils.JSONSizeValidator
	wsEndpoint   string
	proxyEnabled bool
	maxPageBytes int64
}

// NewHandlers creates the handler set
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := opts.WSEndpoint
	if endpoint == "" {
		endpoint = "/ws/page"
	}
	return &Handlers{
		engine:       opts.Engine,
		wallet:       wallet.New(opts.Engine),
		client:       opts.Client,
		registry:     opts.Registry,
		metrics:      opts.Metrics,
		logger:       logger,
		validator:    utils.DefaultJSONValidator(),
		wsEndpoint:   endpoint,
		proxyEnabled: opts.ProxyEnabled,
		maxPageBytes: opts.MaxPageBytes,
	}
}

// Register mounts every handler on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)

	r.POST("/rpc/:method", h.RPC)
	r.GET("/events", h.Events)

	r.GET("/wallets", h.ListWallets)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions/:id", h.DisconnectSession)
	r.POST("/tonconnect", h.HandleTonConnectURL)

	r.GET("/bridge.js", h.BridgeScript)
	r.GET("/page", h.Page)
}

// Health reports liveness and whether the bundle has come up
func (h *Handlers) Health(c *gin.Context) {
	info, ready := h.engine.Ready()
	body := gin.H{
		"status":  "healthy",
		"ready":   ready,
		"pending": h.engine.Pending(),
	}
	if ready {
		body["network"] = info.Network
		body["version"] = info.Version
	}
	if h.registry != nil {
		body["sessions"] = h.registry.Len()
	}
	c.JSON(http.StatusOK, body)
}

// MetricsJSON returns a compact JSON view of the counters and upstream
// breaker states
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.GetSnapshot()
	breakers := gin.H{}
	if h.client != nil {
		for host, state := range h.client.BreakerStates() {
			breakers[host] = state.String()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": gin.H{
			"total":  snap.TotalCalls,
			"failed": snap.FailedCalls,
		},
		"events_delivered": snap.EventsDelivered,
		"active_pages":     snap.ActivePages,
		"breakers":         breakers,
	})
}

// RPC forwards POST /rpc/:method with the request body as params
func (h *Handlers) RPC(c *gin.Context) {
	method := c.Param("method")
	if err := utils.ValidateMethod(method); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	var params any
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if err := h.validator.ValidateJSON(trimmed); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			h.fail(c, status, err)
			return
		}
		params = json.RawMessage(trimmed)
	}

	result, err := h.engine.Call(c.Request.Context(), method, params)
	if err != nil {
		h.logger.Debug("RPC failed",
			zap.String("method", method),
			tracing.Field(c.Request.Context()),
			zap.Error(err))
		h.fail(c, statusFor(err), err)
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *Handlers) fail(c *gin.Context, status int, err error) {
	message := err.Error()
	var bridgeErr *engine.BridgeError
	if errors.As(err, &bridgeErr) {
		message = bridgeErr.Message
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}

// statusFor maps engine and client errors onto HTTP statuses
func statusFor(err error) int {
	var bridgeErr *engine.BridgeError
	switch {
	case errors.As(err, &bridgeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrDestroyed),
		errors.Is(err, engine.ErrNotInitialized),
		errors.Is(err, engine.ErrNoBundle):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
