package engine

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/events"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/rpc"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/shims"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/storage"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

//go:embed bridge.js
var bridgeScript string

var (
	// ErrDestroyed is returned by every operation after Destroy
	ErrDestroyed = errors.New("runtime has been destroyed")

	// ErrNotInitialized is returned when an operation needs a live runtime
	// and none is loaded
	ErrNotInitialized = errors.New("runtime is not initialized")

	// ErrNoBundle is returned by initialization when no bundle source is set
	ErrNoBundle = errors.New("no bundle source configured")
)

// BridgeError is a method-level failure reported by the bundle
type BridgeError struct {
	Method  string
	Message string
}

func (e *BridgeError) Error() string {
	if e.Method == "" {
		return "bridge error: " + e.Message
	}
	return fmt.Sprintf("bridge error in %s: %s", e.Method, e.Message)
}

// Config controls how the runtime is initialized and how calls are bounded
type Config struct {
	Network       string
	APIURL        string
	InitMethod    string
	CallTimeout   time.Duration
	InitTimeout   time.Duration
	StoragePrefix string
	FetchTimeout  time.Duration
}

// DefaultConfig returns the configuration used when nothing was provided
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom extracts the engine settings from the service configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Network:       cfg.Engine.Network,
		APIURL:        cfg.Engine.APIURL,
		InitMethod:    cfg.Engine.InitMethod,
		CallTimeout:   cfg.Engine.CallTimeout.Std(),
		InitTimeout:   cfg.Engine.InitTimeout.Std(),
		StoragePrefix: cfg.Storage.Prefix,
		FetchTimeout:  cfg.HTTP.Timeout.Std(),
	}
}

// ReadyInfo is the echo of the bundle's ready message
type ReadyInfo struct {
	Network string
	Version string
	Raw     json.RawMessage
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithStore sets the key/value store behind localStorage
func WithStore(store storage.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithHTTPClient sets the client behind fetch and EventSource
func WithHTTPClient(client *httpclient.Client) Option {
	return func(e *Engine) { e.client = client }
}

// WithBundle sets the bundle source evaluated on initialization
func WithBundle(source string) Option {
	return func(e *Engine) { e.bundle = source }
}

type binding struct {
	object string
	method string
	fn     any
}

// runtime is one loaded instance. A failed initialization discards it and
// the next attempt builds a fresh one.
type runtime struct {
	lane  *Lane
	shims *shims.Set
	once  sync.Once
}

func (rt *runtime) teardown() {
	rt.once.Do(func() {
		rt.shims.Shutdown()
		rt.lane.Stop()
	})
}

// Engine hosts the wallet bundle in a sandboxed runtime. All evaluation
// happens on one lane; callers suspend on correlated calls.
type Engine struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	store   storage.Store
	client  *httpclient.Client
	bundle  string

	calls  *rpc.Registry
	router *events.Router
	queue  *events.Queue

	initGate    chan struct{}
	initMu      sync.Mutex
	cfg         Config
	initErr     error
	initialized atomic.Bool
	destroyed   atomic.Bool

	rt atomic.Pointer[runtime]

	bindingsMu sync.Mutex
	bindings   []binding

	readyMu sync.RWMutex
	ready   *ReadyInfo
}

// New creates an engine. Nothing is loaded until the first call.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		logger:   zap.NewNop(),
		cfg:      cfg,
		initGate: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = storage.NewMemoryStore()
	}
	if e.client == nil {
		e.client = httpclient.New(httpclient.DefaultOptions())
	}

	e.calls = rpc.NewRegistry(rpc.WithObserver(e.metrics.SetPendingCalls))
	e.router = events.NewRouter(e.logger.Named("events"), e.metrics)
	e.queue = events.NewQueue(e.router)
	return e
}

// Configure stores cfg for the next initialization. A sticky
// initialization failure is cleared so the next call retries.
func (e *Engine) Configure(cfg Config) {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	e.cfg = cfg
	e.initErr = nil
}

// Initialize loads the runtime if it is not loaded yet. Concurrent callers
// share one attempt; a failure is returned to every caller until Configure.
// The attempt runs detached from ctx and is bounded by InitTimeout, so a
// caller that gives up returns ctx.Err() without affecting other callers.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	if e.initialized.Load() {
		return nil
	}

	select {
	case e.initGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.destroyed.Load() {
		<-e.initGate
		return ErrDestroyed
	}
	if e.initialized.Load() {
		<-e.initGate
		return nil
	}

	e.initMu.Lock()
	cfg, stuck := e.cfg, e.initErr
	e.initMu.Unlock()
	if stuck != nil {
		<-e.initGate
		return stuck
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-e.initGate }()
		done <- e.attempt(context.WithoutCancel(ctx), cfg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt runs one initialization while holding the gate
func (e *Engine) attempt(ctx context.Context, cfg Config) error {
	if cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.InitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := e.load(ctx, cfg)
	switch {
	case err == nil:
	case errors.Is(err, ErrDestroyed):
		return ErrDestroyed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// Not sticky: the next caller retries.
		e.metrics.RecordInit(monitoring.StatusTimeout)
		e.logger.Warn("Engine initialization timed out", zap.Duration("timeout", cfg.InitTimeout))
		return fmt.Errorf("engine initialization failed: %w", err)
	default:
		wrapped := fmt.Errorf("engine initialization failed: %w", err)
		e.initMu.Lock()
		e.initErr = wrapped
		e.initMu.Unlock()
		e.metrics.RecordInit(monitoring.StatusError)
		e.logger.Error("Engine initialization failed", zap.Error(err))
		return wrapped
	}

	e.initialized.Store(true)
	e.metrics.RecordInit(monitoring.StatusOK)
	e.logger.Info("Engine initialized",
		zap.String("network", cfg.Network),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *Engine) load(ctx context.Context, cfg Config) error {
	if e.bundle == "" {
		return ErrNoBundle
	}

	reg := new(require.Registry)
	reg.RegisterNativeModule("console", console.RequireWithPrinter(shims.NewConsole(e.logger.Named("console"))))

	lane := NewLane(reg, e.logger.Named("lane"))
	set := shims.New(lane, shims.Options{
		Client:        e.client,
		Store:         e.store,
		StoragePrefix: cfg.StoragePrefix,
		FetchTimeout:  cfg.FetchTimeout,
		Logger:        e.logger.Named("shims"),
		Metrics:       e.metrics,
	})
	rt := &runtime{lane: lane, shims: set}
	lane.Start()

	err := lane.Do(ctx, func(vm *goja.Runtime) error {
		native, err := set.Install(vm)
		if err != nil {
			return err
		}
		if err := e.installBridge(vm, native); err != nil {
			return err
		}
		for _, b := range e.snapshotBindings() {
			if err := installBinding(vm, b); err != nil {
				return err
			}
		}
		if _, err := vm.RunScript("walletkit-bundle.js", e.bundle); err != nil {
			return fmt.Errorf("bundle evaluation failed: %s", exceptionMessage(err))
		}
		return nil
	})
	if err != nil {
		rt.teardown()
		return err
	}

	e.rt.Store(rt)
	if e.destroyed.Load() {
		rt.teardown()
		return ErrDestroyed
	}

	if cfg.InitMethod == "" {
		return nil
	}

	params := map[string]any{"network": cfg.Network}
	if cfg.APIURL != "" {
		params["apiUrl"] = cfg.APIURL
	}
	if _, err := e.invoke(ctx, rt, cfg.InitMethod, params); err != nil {
		e.rt.CompareAndSwap(rt, nil)
		rt.teardown()
		return err
	}
	return nil
}

func (e *Engine) installBridge(vm *goja.Runtime, native *goja.Object) error {
	bridge := vm.NewObject()
	if err := bridge.Set("post", e.receive); err != nil {
		return err
	}
	if err := native.Set("bridge", bridge); err != nil {
		return err
	}
	if _, err := vm.RunScript("walletkit-bridge.js", bridgeScript); err != nil {
		return fmt.Errorf("bridge script failed: %s", exceptionMessage(err))
	}
	return vm.Set("__walletkitListening", e.router.Len() > 0)
}

// receive handles WalletKitNative.bridge.post on the lane
func (e *Engine) receive(raw string) {
	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		e.logger.Warn("Dropping bridge message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case ResponseMessage:
		var ok bool
		if m.Failed {
			ok = e.calls.Reject(m.ID, &BridgeError{Message: m.Error})
		} else {
			ok = e.calls.Resolve(m.ID, m.Result)
		}
		if !ok {
			e.logger.Debug("Discarding response for unknown call", zap.String("call_id", m.ID.String()))
		}
	case EventMessage:
		if !e.queue.Push(m.Type, m.Data) {
			e.logger.Debug("Event queue closed, dropping event", zap.String("type", m.Type))
		}
	case ReadyMessage:
		e.readyMu.Lock()
		e.ready = &ReadyInfo{Network: m.Network, Version: m.Version, Raw: m.Raw}
		e.readyMu.Unlock()
		e.logger.Info("Bundle ready", zap.String("network", m.Network), zap.String("version", m.Version))
	}
}

// Call invokes method on the bundle and waits for its result. The engine
// initializes on first use. Without a ctx deadline the configured call
// timeout applies.
func (e *Engine) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if e.destroyed.Load() {
		return nil, ErrDestroyed
	}
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}

	rt := e.rt.Load()
	if rt == nil {
		if e.destroyed.Load() {
			return nil, ErrDestroyed
		}
		return nil, ErrNotInitialized
	}

	if _, ok := ctx.Deadline(); !ok && e.callTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout())
		defer cancel()
	}
	return e.invoke(ctx, rt, method, params)
}

func (e *Engine) callTimeout() time.Duration {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	return e.cfg.CallTimeout
}

func (e *Engine) invoke(ctx context.Context, rt *runtime, method string, params any) (json.RawMessage, error) {
	timer := monitoring.NewTimer(e.metrics, method)

	paramsJSON := ""
	if params != nil {
		encoded, err := sonic.MarshalString(params)
		if err != nil {
			timer.Stop(monitoring.StatusError)
			return nil, fmt.Errorf("failed to encode params for %s: %w", method, err)
		}
		paramsJSON = encoded
	}

	call, err := e.calls.Register()
	if err != nil {
		timer.Stop(monitoring.StatusDestroyed)
		return nil, err
	}

	args := []any{call.ID.String(), method, paramsJSON}
	if !rt.lane.Submit(func(vm *goja.Runtime) {
		if err := invokePath(vm, "__walletkitCall", args); err != nil {
			e.calls.Reject(call.ID, &BridgeError{Message: exceptionMessage(err)})
		}
	}) {
		e.calls.Reject(call.ID, ErrDestroyed)
	}

	result, err := call.Await(ctx)
	switch {
	case err == nil:
		timer.Stop(monitoring.StatusOK)
		return result, nil
	case errors.Is(err, ErrDestroyed):
		timer.Stop(monitoring.StatusDestroyed)
		return nil, err
	case errors.Is(err, context.DeadlineExceeded):
		timer.Stop(monitoring.StatusTimeout)
		return nil, fmt.Errorf("call %s timed out: %w", method, err)
	}

	timer.Stop(monitoring.StatusError)
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		bridgeErr.Method = method
	}
	return nil, err
}

// AddListener registers l for typed events. The first listener switches
// event emission on inside the runtime. Listeners are matched by equality,
// so a non-comparable listener comes back Rejected.
func (e *Engine) AddListener(l events.Listener) events.AddResult {
	res := e.router.AddListener(l)
	if res.IsFirstListener {
		e.setListening(true)
	}
	return res
}

// RemoveListener unregisters l. Removing the last listener switches event
// emission off.
func (e *Engine) RemoveListener(l events.Listener) events.RemoveResult {
	res := e.router.RemoveListener(l)
	if res.Removed && res.IsEmpty {
		e.setListening(false)
	}
	return res
}

func (e *Engine) setListening(on bool) {
	rt := e.rt.Load()
	if rt == nil {
		return
	}
	rt.lane.Submit(func(vm *goja.Runtime) {
		// a later add or remove may already have run
		if err := vm.Set("__walletkitListening", e.router.Len() > 0); err != nil {
			e.logger.Warn("Failed to update listening flag", zap.Bool("listening", on), zap.Error(err))
		}
	})
}

// RegisterBinding exposes fn as globalThis[object][method]. Bindings are
// kept across re-initialization.
func (e *Engine) RegisterBinding(object, method string, fn any) error {
	if object == "" || method == "" {
		return errors.New("binding object and method names must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("binding %s.%s has no function", object, method)
	}
	if e.destroyed.Load() {
		return ErrDestroyed
	}

	b := binding{object: object, method: method, fn: fn}
	e.bindingsMu.Lock()
	e.bindings = append(e.bindings, b)
	e.bindingsMu.Unlock()

	rt := e.rt.Load()
	if rt == nil {
		return nil
	}
	return rt.lane.Do(context.Background(), func(vm *goja.Runtime) error {
		return installBinding(vm, b)
	})
}

func (e *Engine) snapshotBindings() []binding {
	e.bindingsMu.Lock()
	defer e.bindingsMu.Unlock()
	return append([]binding(nil), e.bindings...)
}

func installBinding(vm *goja.Runtime, b binding) error {
	var obj *goja.Object
	if existing := vm.Get(b.object); existing != nil && !goja.IsUndefined(existing) && !goja.IsNull(existing) {
		obj = existing.ToObject(vm)
	} else {
		obj = vm.NewObject()
		if err := vm.Set(b.object, obj); err != nil {
			return fmt.Errorf("failed to create binding object %s: %w", b.object, err)
		}
	}
	if err := obj.Set(b.method, b.fn); err != nil {
		return fmt.Errorf("failed to install binding %s.%s: %w", b.object, b.method, err)
	}
	return nil
}

// Ready returns the last ready message the bundle posted
func (e *Engine) Ready() (ReadyInfo, bool) {
	e.readyMu.RLock()
	defer e.readyMu.RUnlock()
	if e.ready == nil {
		return ReadyInfo{}, false
	}
	return *e.ready, true
}

// Pending returns the number of outstanding calls
func (e *Engine) Pending() int {
	return e.calls.Len()
}

// Destroy tears the engine down: new calls are refused, outstanding calls
// fail, timers and network operations are cancelled, then the lane and the
// event queue stop. It is idempotent and must not be called from the lane.
func (e *Engine) Destroy() {
	if !e.destroyed.CompareAndSwap(false, true) {
		return
	}

	failed := e.calls.Close(ErrDestroyed)
	if rt := e.rt.Swap(nil); rt != nil {
		rt.teardown()
	}
	e.queue.Close()

	e.logger.Info("Engine destroyed", zap.Int("failed_calls", failed))
}
