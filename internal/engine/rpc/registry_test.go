package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterResolve(t *testing.T) {
	r := NewRegistry()

	call, err := r.Register()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Resolve(call.ID, json.RawMessage(`{"ok":true}`)))
	assert.Equal(t, 0, r.Len())

	value, err := call.Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(value))
}

func TestSecondSettleIsNoop(t *testing.T) {
	r := NewRegistry()
	call, _ := r.Register()

	assert.True(t, r.Reject(call.ID, errors.New("first")))
	assert.False(t, r.Resolve(call.ID, json.RawMessage(`1`)))
	assert.False(t, r.Reject(call.ID, errors.New("second")))

	_, err := call.Await(context.Background())
	assert.EqualError(t, err, "first")
}

func TestUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		assert.False(t, r.Resolve("call_unknown", nil))
		assert.False(t, r.Reject("", errors.New("x")))
	})
}

func TestIDsAreUnique(t *testing.T) {
	r := NewRegistry()
	seen := make(map[id.CallID]bool)
	for i := 0; i < 1000; i++ {
		call, err := r.Register()
		require.NoError(t, err)
		require.False(t, seen[call.ID], "duplicate id %s", call.ID)
		seen[call.ID] = true
	}
}

func TestRegisterSkipsOutstandingID(t *testing.T) {
	ids := []id.CallID{"call_a", "call_a", "call_b"}
	next := 0
	r := NewRegistry(WithIDGenerator(func() id.CallID {
		v := ids[next]
		next++
		return v
	}))

	first, _ := r.Register()
	second, _ := r.Register()
	assert.Equal(t, id.CallID("call_a"), first.ID)
	assert.Equal(t, id.CallID("call_b"), second.ID)
}

func TestFailAll(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.FailAll(errors.New("nothing pending")))

	const n = 25
	calls := make([]*Call, n)
	for i := range calls {
		calls[i], _ = r.Register()
	}

	boom := errors.New("engine destroyed")
	assert.Equal(t, n, r.FailAll(boom))
	assert.Equal(t, 0, r.Len())

	for _, call := range calls {
		_, err := call.Await(context.Background())
		assert.ErrorIs(t, err, boom)
	}

	// Registry stays usable after a plain FailAll.
	_, err := r.Register()
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	r := NewRegistry()
	call, _ := r.Register()

	assert.Equal(t, 1, r.Close(nil))
	_, err := call.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = r.Register()
	assert.ErrorIs(t, err, ErrClosed)

	custom := errors.New("destroyed")
	r2 := NewRegistry()
	r2.Close(custom)
	r2.Close(errors.New("ignored"))
	_, err = r2.Register()
	assert.ErrorIs(t, err, custom)
}

func TestAwaitTimeoutKeepsEntry(t *testing.T) {
	r := NewRegistry()
	call, _ := r.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := call.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, r.Len())

	// Late response is accepted by the table and discarded harmlessly.
	assert.True(t, r.Resolve(call.ID, json.RawMessage(`"late"`)))
	assert.Equal(t, 0, r.Len())
}

func TestOutOfOrderResponses(t *testing.T) {
	r := NewRegistry()
	calls := make([]*Call, 10)
	for i := range calls {
		calls[i], _ = r.Register()
	}

	for i := len(calls) - 1; i >= 0; i-- {
		r.Resolve(calls[i].ID, json.RawMessage(fmt.Sprint(i)))
	}
	for i, call := range calls {
		value, err := call.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(value))
	}
}

func TestConcurrentSettle(t *testing.T) {
	r := NewRegistry()
	call, _ := r.Register()

	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Resolve(call.ID, json.RawMessage(`1`)) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestObserver(t *testing.T) {
	var counts []int
	r := NewRegistry(WithObserver(func(n int) { counts = append(counts, n) }))

	a, _ := r.Register()
	_, _ = r.Register()
	r.Resolve(a.ID, nil)
	r.FailAll(errors.New("x"))

	assert.Equal(t, []int{1, 2, 1, 0}, counts)
}
