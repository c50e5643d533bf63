// Package session owns the bridge's broker session.
//
// A Controller holds the one bus connection, the subscription set, the
// handler registry and the cleanup set, and runs the event loop that
// everything else hangs off:
//
//	Connect  retry until the broker accepts us (fixed delay, warning per failure)
//	setup    adapters subscribe, add handlers and cleanup callbacks
//	Finish   dispatch inbound messages and posted work until the stop
//	         signal, then run every cleanup concurrently, then disconnect
//
// Inbound messages, connection events and anything an adapter hands to
// Post run one at a time on the loop goroutine, so handlers can keep
// plain state without locks as long as foreign goroutines (GPIO edge
// watchers, timers) go through Post.
//
// After every (re)connect the full subscription set is reissued in
// registration order before any later message is dispatched.
//
// Each message is offered to every handler. Handler results are ORed;
// a message nobody claims is logged at info level.
//
// Panics in handlers, posted work, tasks and cleanup callbacks are
// recovered and logged with a stack trace.
package session
