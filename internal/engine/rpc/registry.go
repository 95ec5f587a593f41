// Package rpc correlates native calls with the responses the script
// runtime posts back.
//
// Each call gets a fresh id and a one-shot result slot. Responses for
// unknown or already settled ids are ignored, so duplicate, stray, and late
// responses (after a caller timed out) are harmless.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
)

// ErrClosed is returned by Register after Close
var ErrClosed = errors.New("rpc: registry closed")

type outcome struct {
	value json.RawMessage
	err   error
}

// Call is an outstanding correlated call
type Call struct {
	ID      id.CallID
	Created time.Time

	done chan outcome
}

// Await blocks until the call settles or ctx is done. A ctx failure leaves
// the call registered; a later response is dropped.
func (c *Call) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case out := <-c.done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Option configures a Registry
type Option func(*Registry)

// WithIDGenerator overrides call id generation
func WithIDGenerator(fn func() id.CallID) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithObserver is invoked with the pending count after every change
func WithObserver(fn func(pending int)) Option {
	return func(r *Registry) { r.observe = fn }
}

// Registry is the pending-call table
type Registry struct {
	mu      sync.Mutex
	pending map[id.CallID]*Call
	closed  error

	newID   func() id.CallID
	observe func(int)
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		pending: make(map[id.CallID]*Call),
		newID:   id.NewCallID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register allocates a new pending call
func (r *Registry) Register() (*Call, error) {
	r.mu.Lock()
	if r.closed != nil {
		err := r.closed
		r.mu.Unlock()
		return nil, err
	}

	callID := r.newID()
	for _, taken := r.pending[callID]; taken; _, taken = r.pending[callID] {
		callID = r.newID()
	}

	call := &Call{
		ID:      callID,
		Created: time.Now(),
		done:    make(chan outcome, 1),
	}
	r.pending[callID] = call
	n := len(r.pending)
	r.mu.Unlock()

	r.notify(n)
	return call, nil
}

// Resolve completes a call with its result. It reports whether the id was
// pending.
func (r *Registry) Resolve(callID id.CallID, value json.RawMessage) bool {
	return r.settle(callID, outcome{value: value})
}

// Reject completes a call with err. It reports whether the id was pending.
func (r *Registry) Reject(callID id.CallID, err error) bool {
	return r.settle(callID, outcome{err: err})
}

// FailAll rejects every pending call with err and returns how many there were
func (r *Registry) FailAll(err error) int {
	r.mu.Lock()
	calls := r.pending
	r.pending = make(map[id.CallID]*Call)
	r.mu.Unlock()

	for _, call := range calls {
		call.done <- outcome{err: err}
	}
	if len(calls) > 0 {
		r.notify(0)
	}
	return len(calls)
}

// Close fails every pending call with err and makes Register return err
// from now on. A nil err means ErrClosed.
func (r *Registry) Close(err error) int {
	if err == nil {
		err = ErrClosed
	}
	r.mu.Lock()
	if r.closed == nil {
		r.closed = err
	}
	r.mu.Unlock()
	return r.FailAll(err)
}

// Len returns the number of pending calls
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) settle(callID id.CallID, out outcome) bool {
	r.mu.Lock()
	call, ok := r.pending[callID]
	if ok {
		delete(r.pending, callID)
	}
	n := len(r.pending)
	r.mu.Unlock()

	if !ok {
		return false
	}
	call.done <- out
	r.notify(n)
	return true
}

func (r *Registry) notify(n int) {
	if r.observe != nil {
		r.observe(n)
	}
}
