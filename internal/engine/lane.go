package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// Lane is the serialized execution lane of one runtime. Every job runs on
// the event loop goroutine while holding the evaluation lock, so a job and
// the microtasks it schedules finish before the next job starts.
type Lane struct {
	loop   *eventloop.EventLoop
	logger *zap.Logger

	// held for evaluate + drain
	evalMu sync.Mutex

	vm      atomic.Pointer[goja.Runtime]
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewLane creates a lane whose runtime resolves require() through reg
func NewLane(reg *require.Registry, logger *zap.Logger) *Lane {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lane{
		loop:   eventloop.NewEventLoop(eventloop.WithRegistry(reg)),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins processing jobs
func (l *Lane) Start() {
	l.loop.Start()
	l.loop.RunOnLoop(func(vm *goja.Runtime) {
		l.vm.Store(vm)
	})
}

// Submit queues fn on the lane. It returns false once the lane is stopped.
func (l *Lane) Submit(fn func(vm *goja.Runtime)) bool {
	if l.stopped.Load() {
		return false
	}
	l.loop.RunOnLoop(func(vm *goja.Runtime) {
		if l.stopped.Load() {
			return
		}
		l.run(vm, fn)
	})
	return true
}

// Do runs fn on the lane and waits for its result
func (l *Lane) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	result := make(chan error, 1)
	if !l.Submit(func(vm *goja.Runtime) {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic on execution lane: %v", r)
			}
			result <- err
		}()
		err = fn(vm)
	}) {
		return ErrDestroyed
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke calls the global function at the dotted path with args, then
// runs after. It implements shims.Lane.
func (l *Lane) Invoke(path string, args []any, after func()) bool {
	return l.Submit(func(vm *goja.Runtime) {
		if err := invokePath(vm, path, args); err != nil {
			l.logger.Warn("Lane invocation failed",
				zap.String("path", path),
				zap.String("error", exceptionMessage(err)))
		}
		if after != nil {
			after()
		}
	})
}

// Stop interrupts any running script and stops the loop. Jobs still
// queued are discarded. It must not be called from the lane itself.
func (l *Lane) Stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
		if vm := l.vm.Load(); vm != nil {
			vm.Interrupt(ErrDestroyed)
		}
		l.loop.Stop()
	})
}

// Stopped reports whether Stop has been called
func (l *Lane) Stopped() bool {
	return l.stopped.Load()
}

func (l *Lane) run(vm *goja.Runtime, fn func(vm *goja.Runtime)) {
	l.evalMu.Lock()
	defer l.evalMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered panic on execution lane", zap.Any("panic", r))
		}
	}()
	fn(vm)
}

// invokePath resolves a dotted global path and calls it with this bound to
// the owning object. Calling through goja drains the job queue on return.
func invokePath(vm *goja.Runtime, path string, args []any) error {
	parts := strings.Split(path, ".")
	var owner goja.Value = vm.GlobalObject()
	target := owner

	for _, part := range parts {
		if target == nil || goja.IsUndefined(target) || goja.IsNull(target) {
			return fmt.Errorf("%s is not defined", path)
		}
		owner = target
		target = target.ToObject(vm).Get(part)
	}

	fn, ok := goja.AssertFunction(target)
	if !ok {
		return fmt.Errorf("%s is not a function", path)
	}

	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = vm.ToValue(a)
	}
	_, err := fn(owner, values...)
	return err
}

// exceptionMessage extracts a readable message from a script failure:
// the thrown value's message property, then its string form.
func exceptionMessage(err error) string {
	if err == nil {
		return ""
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok {
			return v.Error()
		}
		return "evaluation interrupted"
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		val := ex.Value()
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			return "evaluation failed"
		}
		if obj, ok := val.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
				if s := msg.String(); s != "" {
					return s
				}
			}
		}
		if s := val.String(); s != "" {
			return s
		}
		return "evaluation failed"
	}

	if s := err.Error(); s != "" {
		return s
	}
	return "evaluation failed"
}
