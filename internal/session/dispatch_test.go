package session

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// prefixHandler claims topics under prefix and counts calls.
type prefixHandler struct {
	prefix string
	calls  int
}

func (h *prefixHandler) HandleMessage(topic string, _ []byte) bool {
	h.calls++
	return strings.HasPrefix(topic, h.prefix)
}

func TestOnMessage_ORAggregation(t *testing.T) {
	tests := []struct {
		name  string
		sync  []bool
		async []bool
		want  bool
	}{
		{"no handlers", nil, nil, false},
		{"all false", []bool{false, false}, []bool{false}, false},
		{"one sync true", []bool{false, true}, []bool{false}, true},
		{"one async true", []bool{false}, []bool{false, true}, true},
		{"all true", []bool{true}, []bool{true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, newFakeBus(), nil)
			var calls atomic.Int32
			for _, r := range tt.sync {
				c.AddHandler(HandlerFunc(func(string, []byte) bool {
					calls.Add(1)
					return r
				}))
			}
			for _, r := range tt.async {
				c.AddAsyncHandler(AsyncHandlerFunc(func(context.Context, string, []byte) bool {
					calls.Add(1)
					return r
				}))
			}

			got := c.OnMessage(context.Background(), "a/b", []byte("x"))
			if got != tt.want {
				t.Errorf("OnMessage() = %v, want %v", got, tt.want)
			}
			if n := int(calls.Load()); n != len(tt.sync)+len(tt.async) {
				t.Errorf("handlers called = %d, want all %d", n, len(tt.sync)+len(tt.async))
			}
		})
	}
}

func TestOnMessage_EveryHandlerSeesMessageEvenAfterClaim(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	first := &prefixHandler{prefix: "control/"}
	second := &prefixHandler{prefix: "control/"}
	c.AddHandler(first)
	c.AddHandler(second)

	if !c.OnMessage(context.Background(), "control/x", nil) {
		t.Error("message not claimed")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestOnMessage_SyncHandlersInRegistrationOrder(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	var order []int
	for i := range 4 {
		c.AddHandler(HandlerFunc(func(string, []byte) bool {
			order = append(order, i)
			return false
		}))
	}

	c.OnMessage(context.Background(), "t", nil)

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestOnMessage_AsyncHandlersRunConcurrently(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)

	// Two handlers that each wait for the other to start.
	a, b := make(chan struct{}), make(chan struct{})
	c.AddAsyncHandler(AsyncHandlerFunc(func(context.Context, string, []byte) bool {
		close(a)
		select {
		case <-b:
			return true
		case <-time.After(2 * time.Second):
			return false
		}
	}))
	c.AddAsyncHandler(AsyncHandlerFunc(func(context.Context, string, []byte) bool {
		close(b)
		select {
		case <-a:
			return false
		case <-time.After(2 * time.Second):
			return false
		}
	}))

	if !c.OnMessage(context.Background(), "t", nil) {
		t.Error("async handlers did not overlap")
	}
}

func TestOnMessage_UnhandledIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestController(t, newFakeBus(), logger)
	c.AddHandler(&prefixHandler{prefix: "control/"})

	c.OnMessage(context.Background(), "sensor/x", nil)
	c.OnMessage(context.Background(), "control/x", nil)

	if got := logger.Count("INFO FYI: unhandled message"); got != 1 {
		t.Errorf("unhandled logs = %d, want 1", got)
	}
}

func TestOnMessage_PanickingHandlerCountsAsFalse(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestController(t, newFakeBus(), logger)

	after := &prefixHandler{prefix: "t"}
	c.AddHandler(HandlerFunc(func(string, []byte) bool { panic("handler bug") }))
	c.AddAsyncHandler(AsyncHandlerFunc(func(context.Context, string, []byte) bool { panic("async bug") }))
	c.AddHandler(after)

	if !c.OnMessage(context.Background(), "t", nil) {
		t.Error("later handler result lost")
	}
	if after.calls != 1 {
		t.Errorf("handler after panic called %d times, want 1", after.calls)
	}
	if logger.Count("ERROR caught panic in message handler") != 1 {
		t.Error("sync panic not logged")
	}
	if logger.Count("ERROR caught panic in async message handler") != 1 {
		t.Error("async panic not logged")
	}
}

func TestAddHandler_Dedup(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	h := &prefixHandler{prefix: "t"}

	c.AddHandler(h)
	c.AddHandler(h)
	c.AddHandler(&prefixHandler{prefix: "t"})

	c.OnMessage(context.Background(), "t", nil)

	if h.calls != 1 {
		t.Errorf("duplicate handler called %d times, want 1", h.calls)
	}
	if len(c.handlers) != 2 {
		t.Errorf("registered handlers = %d, want 2", len(c.handlers))
	}
}

func TestAddHandler_FuncsNotDeduped(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	f := HandlerFunc(func(string, []byte) bool { return true })

	c.AddHandler(f)
	c.AddHandler(f)
	c.AddHandler(nil)

	if len(c.handlers) != 2 {
		t.Errorf("registered handlers = %d, want 2", len(c.handlers))
	}
}

func TestAddCleanupCallback_Dedup(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	task := &Task{name: "x", cancel: func() {}, done: make(chan struct{})}

	c.AddCleanupCallback(task)
	c.AddCleanupCallback(task)
	c.AddCleanupCallback(nil)

	if len(c.cleanups) != 1 {
		t.Errorf("cleanups = %d, want 1", len(c.cleanups))
	}
}

func TestInboundMessagesRunOnLoop(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := make(chan string, 1)
	c.AddHandler(HandlerFunc(func(topic string, payload []byte) bool {
		got <- topic + "=" + string(payload)
		return true
	}))

	// Delivered before the loop starts; held until Finish runs.
	bus.SimulateMessage("control/a", "True")
	select {
	case <-got:
		t.Fatal("message dispatched outside the loop")
	default:
	}

	errCh := startLoop(t, c)
	select {
	case msg := <-got:
		if msg != "control/a=True" {
			t.Errorf("dispatched %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not dispatched")
	}
	stopLoop(t, c, errCh)
}
