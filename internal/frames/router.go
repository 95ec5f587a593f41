package frames

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/wallet"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Methods that establish a session for the calling frame
const (
	MethodConnect           = "connect"
	MethodRestoreConnection = "restoreConnection"
	MethodDisconnect        = "disconnect"
)

// ErrRouterClosed is returned by Handle after Close
var ErrRouterClosed = errors.New("frames: router closed")

// DefaultRequestTimeout bounds one forwarded frame request
const DefaultRequestTimeout = 2 * time.Minute

type pendingKey struct {
	frame     id.FrameID
	messageID string
}

type pendingRequest struct {
	method  string
	arrived time.Time
}

// Option configures a Router
type Option func(*Router)

// WithMetrics records frame request outcomes
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Router) { r.metrics = metrics }
}

// WithRequestTimeout bounds each forwarded request
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Router forwards the protocol requests of one page's frames to the engine
// and routes each response back to the frame that asked.
type Router struct {
	page     Page
	caller   wallet.Caller
	registry *Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  map[pendingKey]pendingRequest
	bindings map[id.FrameID]*Binding
	closed   bool
}

// NewRouter creates a router for page. Bindings it registers stay
// reachable through registry for as long as the router is referenced.
func NewRouter(page Page, caller wallet.Caller, registry *Registry, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		page:     page,
		caller:   caller,
		registry: registry,
		logger:   logger.With(zap.String("page_id", page.ID().String())),
		timeout:  DefaultRequestTimeout,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[pendingKey]pendingRequest),
		bindings: make(map[id.FrameID]*Binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach reconciles with the session list so a reloaded page regains
// event delivery for sessions whose dApp lives on the page's host. It
// returns the re-bound session ids.
func (r *Router) Attach(ctx context.Context) ([]string, error) {
	pageHost := hostOf(r.page.URL())
	if pageHost == "" {
		return nil, nil
	}

	raw, err := r.caller.Call(ctx, wallet.MethodListSessions, nil)
	if err != nil {
		return nil, err
	}
	sessions, err := wallet.DecodeSessions(raw)
	if err != nil {
		return nil, err
	}

	var rebound []string
	main := r.binding(id.MainFrame)
	for _, s := range sessions {
		if s.SessionID == "" || hostOf(s.DAppURL) != pageHost {
			continue
		}
		r.registry.Register(s.SessionID, main)
		rebound = append(rebound, s.SessionID)
	}
	if len(rebound) > 0 {
		r.logger.Info("Re-bound sessions to page", zap.Strings("sessions", rebound))
	}
	return rebound, nil
}

// Handle accepts one raw TONCONNECT_BRIDGE_REQUEST. The request is
// forwarded asynchronously; malformed requests are dropped with a warning
// and the decode error is returned.
func (r *Router) Handle(ctx context.Context, raw []byte) error {
	req, err := DecodeRequest(raw)
	if err != nil {
		r.logger.Warn("Dropping frame request", zap.Error(err))
		r.metrics.RecordFrameRequest("", "dropped")
		return err
	}

	key := pendingKey{frame: req.FrameID, messageID: req.MessageID}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	if _, dup := r.pending[key]; dup {
		r.mu.Unlock()
		r.logger.Warn("Dropping duplicate frame request",
			zap.String("frame_id", req.FrameID.String()),
			zap.String("message_id", req.MessageID))
		r.metrics.RecordFrameRequest(req.Method, "duplicate")
		return nil
	}
	r.pending[key] = pendingRequest{method: req.Method, arrived: time.Now()}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.process(ctx, key, req)
	return nil
}

// Pending returns the number of in-flight frame requests
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels in-flight requests and waits for them. Sessions stay
// registered; they expire with the router itself.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Router) process(ctx context.Context, key pendingKey, req Request) {
	defer r.wg.Done()

	callCtx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var params any
	if req.Params != nil {
		params = req.Params
	}
	result, callErr := r.caller.Call(callCtx, req.Method, params)

	r.mu.Lock()
	pending := r.pending[key]
	delete(r.pending, key)
	r.mu.Unlock()

	log := r.logger.With(
		zap.String("frame_id", req.FrameID.String()),
		zap.String("message_id", req.MessageID),
		zap.String("method", req.Method),
		zap.Duration("elapsed", time.Since(pending.arrived)))

	success := callErr == nil
	payload := result
	if !success {
		payload = errorPayload(callErr)
		log.Debug("Frame request failed", zap.Error(callErr))
	}

	msg, err := EncodeResponse(req, success, payload)
	if err != nil {
		log.Error("Failed to encode frame response", zap.Error(err))
		r.metrics.RecordFrameRequest(req.Method, monitoring.StatusError)
		return
	}
	if err := r.binding(req.FrameID).Deliver(msg); err != nil {
		log.Warn("Failed to deliver frame response", zap.Error(err))
		r.metrics.RecordFrameRequest(req.Method, "undelivered")
		return
	}

	if success {
		r.metrics.RecordFrameRequest(req.Method, monitoring.StatusOK)
		r.afterSuccess(callCtx, req, result, log)
	} else {
		r.metrics.RecordFrameRequest(req.Method, monitoring.StatusError)
	}
}

func (r *Router) afterSuccess(ctx context.Context, req Request, result json.RawMessage, log *zap.Logger) {
	switch req.Method {
	case MethodConnect, MethodRestoreConnection:
		sessionID := r.sessionFor(ctx, result)
		if sessionID == "" {
			log.Debug("No session to bind after connection")
			return
		}
		r.registry.Register(sessionID, r.binding(req.FrameID))
		log.Info("Bound session to frame", zap.String("session_id", sessionID))

	case MethodDisconnect:
		r.mu.Lock()
		b := r.bindings[req.FrameID]
		r.mu.Unlock()
		if forgotten := r.registry.ForgetBinding(b); len(forgotten) > 0 {
			log.Info("Forgot frame sessions", zap.Strings("sessions", forgotten))
		}
	}
}

// sessionFor prefers a session id in the connect response. Without one it
// falls back to the most recently created session, which can pick the
// wrong session when connections race.
func (r *Router) sessionFor(ctx context.Context, result json.RawMessage) string {
	var direct struct {
		SessionID string `json:"sessionId"`
	}
	if len(result) > 0 && sonic.Unmarshal(result, &direct) == nil && direct.SessionID != "" {
		return direct.SessionID
	}

	raw, err := r.caller.Call(ctx, wallet.MethodListSessions, nil)
	if err != nil {
		r.logger.Warn("Failed to list sessions", zap.Error(err))
		return ""
	}
	sessions, err := wallet.DecodeSessions(raw)
	if err != nil {
		r.logger.Warn("Failed to decode sessions", zap.Error(err))
		return ""
	}
	latest, ok := wallet.MostRecent(sessions)
	if !ok {
		return ""
	}
	return latest.SessionID
}

// binding returns the router-owned binding for a frame
func (r *Router) binding(frameID id.FrameID) *Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[frameID]
	if !ok {
		b = &Binding{Page: r.page, FrameID: frameID}
		r.bindings[frameID] = b
	}
	return b
}

func errorPayload(err error) json.RawMessage {
	message := err.Error()
	var bridgeErr *engine.BridgeError
	if errors.As(err, &bridgeErr) {
		message = bridgeErr.Message
	}
	payload, _ := sonic.Marshal(map[string]string{"message": message})
	return payload
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
