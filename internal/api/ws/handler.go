package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/frames"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures the page transport
type Options struct {
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
	RequestTimeout time.Duration
	// CheckOrigin defaults to accepting every origin; dApp pages are
	// served from anywhere
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades page connections and runs one frames.Router per page
type Handler struct {
	caller   wallet.Caller
	registry *frames.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader

	mu     sync.Mutex
	pages  map[*pageConn]struct{}
	closed bool
}

// NewHandler creates a new WebSocket handler
func NewHandler(caller wallet.Caller, registry *frames.Registry, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		caller:   caller,
		registry: registry,
		metrics:  opts.Metrics,
		logger:   logger,
		timeout:  opts.RequestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		pages: make(map[*pageConn]struct{}),
	}
}

// HandleConnection upgrades GET /ws/page?url= and serves the page until
// either side closes
func (h *Handler) HandleConnection(c *gin.Context) {
	pageURL := c.Query("url")
	if pageURL == "" {
		pageURL = c.GetHeader("Origin")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	page := newPageConn(conn, pageURL, h.logger)
	if !h.track(page) {
		page.close()
		page.writePump()
		return
	}
	defer h.untrack(page)

	h.metrics.IncPageConnections()
	defer h.metrics.DecPageConnections()

	router := frames.NewRouter(page, h.caller, h.registry, h.logger,
		frames.WithMetrics(h.metrics),
		frames.WithRequestTimeout(h.timeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		router.Close()
		page.close()
	}()

	go page.writePump()
	go func() {
		if _, err := router.Attach(ctx); err != nil && ctx.Err() == nil {
			page.logger.Warn("Failed to re-bind sessions", zap.Error(err))
		}
	}()

	page.logger.Info("Page connected", zap.String("url", pageURL))
	h.readLoop(ctx, page, router)
	page.logger.Info("Page disconnected")
}

func (h *Handler) readLoop(ctx context.Context, page *pageConn, router *frames.Router) {
	conn := page.conn
	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !page.closed() {
				page.logger.Debug("Page read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		// malformed requests are logged and dropped by the router
		_ = router.Handle(ctx, data)
	}
}

func (h *Handler) track(p *pageConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.pages[p] = struct{}{}
	return true
}

func (h *Handler) untrack(p *pageConn) {
	h.mu.Lock()
	delete(h.pages, p)
	h.mu.Unlock()
}

// Active returns the number of connected pages
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pages)
}

// Close disconnects every page and refuses new ones
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	pages := make([]*pageConn, 0, len(h.pages))
	for p := range h.pages {
		pages = append(pages, p)
	}
	h.mu.Unlock()

	for _, p := range pages {
		p.close()
	}
}
