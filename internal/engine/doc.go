// Package engine hosts the wallet bundle inside a goja runtime.
//
// One Engine owns one runtime at a time and evaluates everything on a
// single execution lane (a goja_nodejs event loop). Native callers never
// touch the runtime: Call registers a correlated call, posts
// __walletkitCall onto the lane and suspends until the bundle answers
// through WalletKitNative.bridge.post.
//
// Script to native messages are decoded once into ReadyMessage,
// EventMessage or ResponseMessage. Responses settle pending calls, events
// go to the event queue, and ready messages are kept for Ready.
//
// Initialization is lazy. The first Call (or an explicit Initialize)
// installs the capability shims, the call bridge and any registered
// bindings, evaluates the bundle and then performs the configured init
// call. A failure sticks until Configure is called again.
//
// Example:
//
//	e := engine.New(engine.DefaultConfig(),
//		engine.WithBundle(source),
//		engine.WithLogger(logger.Named("engine")),
//	)
//	defer e.Destroy()
//
//	wallets, err := e.Call(ctx, "getWallets", nil)
package engine
