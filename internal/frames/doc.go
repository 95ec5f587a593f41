// Package frames connects displayed dApp pages to the wallet engine.
//
// Every frame of a page runs the injected bridge script (see BridgeScript
// and InjectIntoHTML). The top frame holds the page transport and relays
// requests from embedded frames. A Router forwards each request to the
// engine and delivers the response only to the frame that sent it, keyed
// by frame id and message id.
//
// Sessions established from a frame are recorded in a Registry that holds
// bindings weakly, so a closed page never receives events and is never
// kept alive by its sessions. Hub listens for engine disconnect events and
// broadcasts them to the bound page.
package frames
