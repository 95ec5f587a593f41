package shims

// Lane posts work onto the script runtime's execution lane.
//
// Invoke calls the global function at the dotted path (for example
// "__walletkitTimers.fire") with args, then runs after (when non-nil) on
// the lane once the call and its microtasks have finished. It returns false
// when the lane no longer accepts work, in which case after never runs.
type Lane interface {
	Invoke(path string, args []any, after func()) bool
}

// Hook paths of the JS-side completion handlers installed by the prelude
const (
	hookTimerFire     = "__walletkitTimers.fire"
	hookFetchResolve  = "__walletkitFetch.resolve"
	hookFetchReject   = "__walletkitFetch.reject"
	hookStreamOpen    = "__walletkitEventSource.onOpen"
	hookStreamMessage = "__walletkitEventSource.onMessage"
	hookStreamError   = "__walletkitEventSource.onError"
	hookStreamClose   = "__walletkitEventSource.onClose"
)
