package shims

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type invocation struct {
	path string
	args []any
}

// recordingLane records posts and runs after hooks inline
type recordingLane struct {
	mu     sync.Mutex
	calls  []invocation
	closed bool
	posted chan invocation
}

func newRecordingLane() *recordingLane {
	return &recordingLane{posted: make(chan invocation, 1024)}
}

func (l *recordingLane) Invoke(path string, args []any, after func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	inv := invocation{path: path, args: args}
	l.calls = append(l.calls, inv)
	l.mu.Unlock()

	l.posted <- inv
	if after != nil {
		after()
	}
	return true
}

func (l *recordingLane) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *recordingLane) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.path == path {
			n++
		}
	}
	return n
}

func (l *recordingLane) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *recordingLane) next(t *testing.T) invocation {
	t.Helper()
	select {
	case inv := <-l.posted:
		return inv
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for lane post")
		return invocation{}
	}
}

func (l *recordingLane) nextOf(t *testing.T, path string) invocation {
	t.Helper()
	for {
		if inv := l.next(t); inv.path == path {
			return inv
		}
	}
}
