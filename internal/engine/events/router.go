package events

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Listener receives typed events. Listeners are identified by interface
// equality, so implementations should be pointer types.
type Listener interface {
	HandleEvent(Event) error
}

type funcListener struct {
	fn func(Event) error
}

func (f *funcListener) HandleEvent(e Event) error { return f.fn(e) }

// Func adapts fn to a Listener. Each call returns a distinct listener.
func Func(fn func(Event) error) Listener {
	return &funcListener{fn: fn}
}

// AddResult reports the effect of AddListener
type AddResult struct {
	AlreadyRegistered bool
	IsFirstListener   bool
	// Rejected is set for listeners that cannot be identified, such as
	// slice or map types.
	Rejected bool
}

// RemoveResult reports the effect of RemoveListener
type RemoveResult struct {
	Removed bool
	IsEmpty bool
}

// Router fans typed events out to registered listeners
type Router struct {
	mu        sync.RWMutex
	listeners []Listener

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewRouter creates a router with no listeners
func NewRouter(logger *zap.Logger, metrics *monitoring.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger, metrics: metrics}
}

// AddListener registers l. Adding a registered listener is a no-op, and a
// nil or non-comparable listener is rejected without being registered.
func (r *Router) AddListener(l Listener) AddResult {
	if t := reflect.TypeOf(l); t == nil || !t.Comparable() {
		r.logger.Warn("Rejecting listener that cannot be compared", zap.String("listener", fmt.Sprintf("%T", l)))
		return AddResult{Rejected: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners {
		if existing == l {
			return AddResult{AlreadyRegistered: true}
		}
	}
	r.listeners = append(r.listeners, l)
	r.metrics.SetListeners(len(r.listeners))
	return AddResult{IsFirstListener: len(r.listeners) == 1}
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (r *Router) RemoveListener(l Listener) RemoveResult {
	if t := reflect.TypeOf(l); t == nil || !t.Comparable() {
		return RemoveResult{IsEmpty: r.Len() == 0}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			r.metrics.SetListeners(len(r.listeners))
			return RemoveResult{Removed: true, IsEmpty: len(r.listeners) == 0}
		}
	}
	return RemoveResult{IsEmpty: len(r.listeners) == 0}
}

// Len returns the number of registered listeners
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Dispatch parses a raw event and delivers it. It returns the number of
// listeners that handled it without error.
func (r *Router) Dispatch(eventType string, data json.RawMessage) int {
	event, ok := Parse(eventType, data)
	if !ok {
		r.logger.Debug("Dropping untyped event", zap.String("type", eventType))
		return 0
	}
	return r.DispatchEvent(event)
}

// DispatchEvent delivers an already typed event to every listener
// registered at call time. Listener failures are logged and isolated.
func (r *Router) DispatchEvent(event Event) int {
	r.mu.RLock()
	targets := make([]Listener, len(r.listeners))
	copy(targets, r.listeners)
	r.mu.RUnlock()

	r.metrics.RecordEvent(event.Type())

	delivered := 0
	for _, l := range targets {
		if err := r.deliver(l, event); err != nil {
			r.metrics.IncListenerFailures()
			r.logger.Warn("Event listener failed",
				zap.String("type", event.Type()),
				zap.String("listener", fmt.Sprintf("%T", l)),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Router) deliver(l Listener, event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l.HandleEvent(event)
}
