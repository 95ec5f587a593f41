// Package events parses the raw events the wallet bundle posts into typed
// variants and fans them out to native listeners.
//
// Parsing is pure: internal notifications (state changes, session list
// updates, browser window events) and unknown tags produce no event, and
// neither does a payload missing its identifier. Delivery isolates
// listeners from each other: an error or panic in one is logged and the
// remaining listeners still receive the event. There is no replay and no
// deduplication.
package events
