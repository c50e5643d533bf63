package session

import (
	"context"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// Handler is consulted synchronously for every inbound message.
// It reports whether it handled the message.
type Handler interface {
	HandleMessage(topic string, payload []byte) bool
}

// HandlerFunc adapts a function to Handler.
// Function values cannot be compared, so the same HandlerFunc added
// twice is registered twice.
type HandlerFunc func(topic string, payload []byte) bool

// HandleMessage calls f(topic, payload).
func (f HandlerFunc) HandleMessage(topic string, payload []byte) bool {
	return f(topic, payload)
}

// AsyncHandler is started for every inbound message alongside the
// other async handlers; dispatch waits for all of them.
type AsyncHandler interface {
	HandleMessageAsync(ctx context.Context, topic string, payload []byte) bool
}

// AsyncHandlerFunc adapts a function to AsyncHandler.
type AsyncHandlerFunc func(ctx context.Context, topic string, payload []byte) bool

// HandleMessageAsync calls f(ctx, topic, payload).
func (f AsyncHandlerFunc) HandleMessageAsync(ctx context.Context, topic string, payload []byte) bool {
	return f(ctx, topic, payload)
}

// handlerEntry is one registry slot: exactly one of sync or async is set.
type handlerEntry struct {
	sync  Handler
	async AsyncHandler
}

func (e handlerEntry) value() any {
	if e.sync != nil {
		return e.sync
	}
	return e.async
}

// sameIdentity reports whether a and b are the same registration.
// Values of non-comparable types never match.
func sameIdentity(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// AddHandler registers a synchronous handler. Adding the same handler
// again is a no-op.
func (c *Controller) AddHandler(h Handler) {
	if h == nil {
		return
	}
	c.addHandler(handlerEntry{sync: h})
}

// AddAsyncHandler registers an asynchronous handler. Adding the same
// handler again is a no-op.
func (c *Controller) AddAsyncHandler(h AsyncHandler) {
	if h == nil {
		return
	}
	c.addHandler(handlerEntry{async: h})
}

func (c *Controller) addHandler(e handlerEntry) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	for _, existing := range c.handlers {
		if sameIdentity(existing.value(), e.value()) {
			return
		}
	}
	c.handlers = append(c.handlers, e)
}

// OnMessage offers one inbound message to every handler.
//
// Synchronous handlers run in registration order. Asynchronous handlers
// are all started, then awaited together. The result is the OR of every
// handler's answer; when nobody claims the message it is logged at info
// level.
func (c *Controller) OnMessage(ctx context.Context, topic string, payload []byte) bool {
	c.regMu.Lock()
	entries := make([]handlerEntry, len(c.handlers))
	copy(entries, c.handlers)
	c.regMu.Unlock()

	c.logger.Debug("dispatching", "topic", topic, "handlers", len(entries))

	handled := false
	var async []AsyncHandler
	for _, e := range entries {
		if e.async != nil {
			async = append(async, e.async)
			continue
		}
		if c.callHandler(e.sync, topic, payload) {
			handled = true
		}
	}

	if len(async) > 0 {
		results := make([]bool, len(async))
		var g errgroup.Group
		for i, h := range async {
			g.Go(func() error {
				results[i] = c.callAsyncHandler(ctx, h, topic, payload)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // goroutines never return errors
		for _, r := range results {
			handled = handled || r
		}
	}

	if !handled {
		c.logger.Info("FYI: unhandled message", "topic", topic, "payload", string(payload))
	}
	return handled
}

func (c *Controller) callHandler(h Handler, topic string, payload []byte) (handled bool) {
	defer c.recoverPanic("message handler", "topic", topic)
	return h.HandleMessage(topic, payload)
}

func (c *Controller) callAsyncHandler(ctx context.Context, h AsyncHandler, topic string, payload []byte) (handled bool) {
	defer c.recoverPanic("async message handler", "topic", topic)
	return h.HandleMessageAsync(ctx, topic, payload)
}
