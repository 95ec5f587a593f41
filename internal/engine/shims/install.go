package shims

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/storage"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// NativeObject is the global through which the prelude reaches the shims
const NativeObject = "WalletKitNative"

//go:embed prelude.js
var prelude string

// Options configures a Set
type Options struct {
	Client        *httpclient.Client
	Store         storage.Store
	StoragePrefix string
	FetchTimeout  time.Duration
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
}

// Set is the full collection of capability shims for one runtime
type Set struct {
	Timers   *Timers
	Fetch    *Fetch
	Streams  *EventStreams
	Storage  *Storage
	Crypto   Crypto
	Encoding Encoding
}

// New builds every shim on top of lane
func New(lane Lane, opts Options) *Set {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Client == nil {
		opts.Client = httpclient.New(httpclient.DefaultOptions())
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}

	return &Set{
		Timers:  NewTimers(lane, opts.Metrics),
		Fetch:   NewFetch(lane, opts.Client, opts.FetchTimeout, opts.Logger.Named("fetch"), opts.Metrics),
		Streams: NewEventStreams(lane, opts.Client, opts.Logger.Named("eventsource"), opts.Metrics),
		Storage: NewStorage(opts.Store, opts.StoragePrefix),
	}
}

// Install publishes the shims as WalletKitNative on vm and evaluates the
// prelude that builds the browser-style globals on top of them. It must
// run on the execution lane.
func (s *Set) Install(vm *goja.Runtime) (*goja.Object, error) {
	native := vm.NewObject()

	groups := map[string]map[string]any{
		"timers": {
			"request": s.Timers.Request,
			"clear":   s.Timers.Clear,
		},
		"fetch": {
			"perform": s.Fetch.Perform,
			"abort":   s.Fetch.Abort,
		},
		"eventSource": {
			"open":  s.Streams.Open,
			"close": s.Streams.Close,
		},
		"storage": {
			"get":    s.Storage.Get,
			"set":    s.Storage.Set,
			"remove": s.Storage.Remove,
			"clear":  s.Storage.Clear,
			"keys":   s.Storage.Keys,
		},
		"crypto": {
			"randomBytes":  s.Crypto.RandomBytes,
			"randomUUID":   s.Crypto.RandomUUID,
			"sha256":       s.Crypto.Sha256,
			"sha512":       s.Crypto.Sha512,
			"hmacSha512":   s.Crypto.HmacSha512,
			"pbkdf2Sha512": s.Crypto.Pbkdf2Sha512,
		},
		"encoding": {
			"atob":       s.Encoding.Atob,
			"btoa":       s.Encoding.Btoa,
			"encodeUtf8": s.Encoding.EncodeUtf8,
			"decodeUtf8": s.Encoding.DecodeUtf8,
		},
	}

	for name, methods := range groups {
		obj := vm.NewObject()
		for method, fn := range methods {
			if err := obj.Set(method, fn); err != nil {
				return nil, fmt.Errorf("failed to install %s.%s: %w", name, method, err)
			}
		}
		if err := native.Set(name, obj); err != nil {
			return nil, fmt.Errorf("failed to install %s: %w", name, err)
		}
	}

	if err := vm.Set(NativeObject, native); err != nil {
		return nil, fmt.Errorf("failed to install native object: %w", err)
	}
	if _, err := vm.RunScript("walletkit-prelude.js", prelude); err != nil {
		return nil, fmt.Errorf("failed to evaluate prelude: %w", err)
	}
	return native, nil
}

// Shutdown cancels timers, then aborts network and stream operations
func (s *Set) Shutdown() {
	s.Timers.CancelAll()
	s.Fetch.AbortAll()
	s.Streams.CloseAll()
}
