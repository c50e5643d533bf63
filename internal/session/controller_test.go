package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test doubles
// =============================================================================

type publishRecord struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// fakeBus implements BusClient and records everything in one event log.
type fakeBus struct {
	mu           sync.Mutex
	connectErrs  []error
	connectCalls int
	connected    bool
	events       []string
	published    []publishRecord
	onConnect    func()
	onDisconnect func(error)
	onMessage    func(string, []byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) Connect(context.Context) error {
	b.mu.Lock()
	b.connectCalls++
	if len(b.connectErrs) > 0 {
		err := b.connectErrs[0]
		b.connectErrs = b.connectErrs[1:]
		if err != nil {
			b.mu.Unlock()
			return err
		}
	}
	b.connected = true
	cb := b.onConnect
	b.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

func (b *fakeBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.events = append(b.events, "disconnect")
	return nil
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishRecord{topic, string(payload), qos, retained})
	b.events = append(b.events, "pub:"+topic+"="+string(payload))
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "sub:"+topic)
	return nil
}

func (b *fakeBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBus) SetOnConnect(cb func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = cb
}

func (b *fakeBus) SetOnDisconnect(cb func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDisconnect = cb
}

func (b *fakeBus) SetOnMessage(cb func(string, []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = cb
}

func (b *fakeBus) record(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

func (b *fakeBus) ClearEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func (b *fakeBus) Published() []publishRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

func (b *fakeBus) SimulateDisconnect(err error) {
	b.mu.Lock()
	b.connected = false
	cb := b.onDisconnect
	b.mu.Unlock()
	cb(err)
}

func (b *fakeBus) SimulateReconnect() {
	b.mu.Lock()
	b.connected = true
	cb := b.onConnect
	b.mu.Unlock()
	cb()
}

func (b *fakeBus) SimulateMessage(topic, payload string) {
	b.mu.Lock()
	cb := b.onMessage
	b.mu.Unlock()
	cb(topic, []byte(payload))
}

// recordingLogger captures log lines as "LEVEL msg".
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("ERROR", msg) }

func (l *recordingLogger) Count(line string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.lines {
		if got == line {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T, bus BusClient, logger Logger) *Controller {
	t.Helper()
	c, err := New(Options{Bus: bus, Host: "testhost", Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// startLoop runs Finish in the background and returns its result channel.
func startLoop(t *testing.T, c *Controller) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Finish(context.Background()) }()
	return errCh
}

func stopLoop(t *testing.T, c *Controller, errCh <-chan error) {
	t.Helper()
	c.AskExit()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Finish() did not return")
	}
}

// drain waits until everything posted so far has run on the loop.
func drain(t *testing.T, c *Controller) {
	t.Helper()
	done := make(chan struct{})
	c.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresBus(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoBus) {
		t.Errorf("New() error = %v, want ErrNoBus", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)

	if c.Host() != "testhost" {
		t.Errorf("Host() = %q, want %q", c.Host(), "testhost")
	}
	if c.qos != DefaultQoS {
		t.Errorf("qos = %d, want %d", c.qos, DefaultQoS)
	}
	if c.retryDelay != DefaultRetryDelay {
		t.Errorf("retryDelay = %v, want %v", c.retryDelay, DefaultRetryDelay)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", c.State(), StateDisconnected)
	}
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect_RetriesUntilSuccess(t *testing.T) {
	bus := newFakeBus()
	fail := errors.New("connection refused")
	bus.connectErrs = []error{fail, fail, fail}
	logger := &recordingLogger{}

	c := newTestController(t, bus, logger)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if bus.connectCalls != 4 {
		t.Errorf("connect attempts = %d, want 4", bus.connectCalls)
	}
	if len(sleeps) != 3 {
		t.Fatalf("sleeps = %d, want 3", len(sleeps))
	}
	for i, d := range sleeps {
		if d != DefaultRetryDelay {
			t.Errorf("sleep[%d] = %v, want %v", i, d, DefaultRetryDelay)
		}
	}
	if got := logger.Count("WARN error trying to connect, retrying"); got != 3 {
		t.Errorf("retry warnings = %d, want 3", got)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %v, want %v", c.State(), StateConnected)
	}
}

func TestConnect_StopsOnAskExit(t *testing.T) {
	bus := newFakeBus()
	bus.connectErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}

	c := newTestController(t, bus, nil)
	c.sleep = func(context.Context, time.Duration) error {
		c.AskExit()
		return nil
	}

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Connect() error = %v, want ErrStopped", err)
	}
	if bus.connectCalls != 1 {
		t.Errorf("connect attempts = %d, want 1", bus.connectCalls)
	}
}

func TestConnect_StopsOnContextCancel(t *testing.T) {
	bus := newFakeBus()
	bus.connectErrs = []error{errors.New("down")}

	c := newTestController(t, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Connect(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Connect() error = %v, want ErrStopped", err)
	}
}

// =============================================================================
// Subscriptions
// =============================================================================

func TestSubscribe_Dedup(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)

	c.Subscribe("a/#")
	c.Subscribe("b/#")
	c.Subscribe("a/#")

	if got := c.Subscriptions(); !slices.Equal(got, []string{"a/#", "b/#"}) {
		t.Errorf("Subscriptions() = %v, want [a/# b/#]", got)
	}
}

func TestReconnect_ReplaysSubscriptionsBeforeDispatch(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.Subscribe("a/#")
	c.Subscribe("b/#")
	c.Subscribe("c/#")
	c.AddHandler(HandlerFunc(func(topic string, _ []byte) bool {
		bus.record("dispatch:" + topic)
		return true
	}))

	errCh := startLoop(t, c)

	// Initial connection: each subscription issued exactly once.
	waitFor(t, "initial subscriptions", func() bool {
		return slices.Contains(bus.Events(), "sub:c/#")
	})
	if got := bus.Events(); !slices.Equal(got, []string{"sub:a/#", "sub:b/#", "sub:c/#"}) {
		t.Fatalf("initial events = %v", got)
	}
	bus.ClearEvents()

	bus.SimulateDisconnect(errors.New("link down"))
	bus.SimulateReconnect()
	bus.SimulateMessage("x/1", "True")

	waitFor(t, "dispatch after reconnect", func() bool {
		return slices.Contains(bus.Events(), "dispatch:x/1")
	})
	stopLoop(t, c, errCh)

	want := []string{"sub:a/#", "sub:b/#", "sub:c/#", "dispatch:x/1", "disconnect"}
	if got := bus.Events(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSubscribe_WhileConnectedIssuesOnce(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	errCh := startLoop(t, c)
	drain(t, c)

	c.Subscribe("late/#")
	c.Subscribe("late/#")
	stopLoop(t, c, errCh)

	want := []string{"sub:late/#", "disconnect"}
	if got := bus.Events(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// =============================================================================
// Finish / shutdown
// =============================================================================

func TestFinish_CleanupsCompleteBeforeDisconnect(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	const n = 3
	var started sync.WaitGroup
	started.Add(n)
	for i := range n {
		c.AddCleanupCallback(CleanupFunc(func(context.Context) error {
			started.Done()

			// Every cleanup waits for all to start: only passes if they run concurrently.
			allStarted := make(chan struct{})
			go func() { started.Wait(); close(allStarted) }()
			select {
			case <-allStarted:
			case <-time.After(2 * time.Second):
				return fmt.Errorf("cleanup %d: others never started", i)
			}

			time.Sleep(time.Duration(i*10) * time.Millisecond)
			bus.record(fmt.Sprintf("cleanup:%d", i))
			return nil
		}))
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	errCh := startLoop(t, c)
	bus.ClearEvents()
	stopLoop(t, c, errCh)

	events := bus.Events()
	if len(events) != n+1 {
		t.Fatalf("events = %v, want %d cleanups then disconnect", events, n)
	}
	if events[n] != "disconnect" {
		t.Errorf("last event = %q, want disconnect", events[n])
	}
	for i := range n {
		if !slices.Contains(events[:n], fmt.Sprintf("cleanup:%d", i)) {
			t.Errorf("cleanup:%d missing before disconnect: %v", i, events)
		}
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %v, want %v", c.State(), StateClosed)
	}
}

func TestFinish_CleanupErrorsAndPanicsDoNotBlockShutdown(t *testing.T) {
	bus := newFakeBus()
	logger := &recordingLogger{}
	c := newTestController(t, bus, logger)

	c.AddCleanupCallback(CleanupFunc(func(context.Context) error { return errors.New("nope") }))
	c.AddCleanupCallback(CleanupFunc(func(context.Context) error { panic("boom") }))

	errCh := startLoop(t, c)
	stopLoop(t, c, errCh)

	if logger.Count("WARN cleanup failed") != 1 {
		t.Error("cleanup error not logged")
	}
	if logger.Count("ERROR caught panic in cleanup callback") != 1 {
		t.Error("cleanup panic not logged")
	}
	if !slices.Contains(bus.Events(), "disconnect") {
		t.Error("bus not disconnected")
	}
}

func TestFinish_ContextCancelStops(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Finish(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Finish() did not return after cancel")
	}
	select {
	case <-c.Stopped():
	default:
		t.Error("stop signal not set")
	}
}

func TestAskExit_Idempotent(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	c.AskExit()
	c.AskExit()

	if c.State() != StateStopSignalled {
		t.Errorf("State() = %v, want %v", c.State(), StateStopSignalled)
	}
}

// =============================================================================
// Run
// =============================================================================

func TestRun_SetupFailureDoesNotAbort(t *testing.T) {
	bus := newFakeBus()
	logger := &recordingLogger{}
	c := newTestController(t, bus, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(context.Background(), func(context.Context) error {
			c.Subscribe("a/#")
			c.Post(c.AskExit)
			return errors.New("adapter broken")
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}

	if logger.Count("WARN setup failed") != 1 {
		t.Error("setup error not logged")
	}
	if !slices.Contains(bus.Events(), "sub:a/#") {
		t.Errorf("subscription not issued: %v", bus.Events())
	}
}

func TestRun_SetupPanicRecovered(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestController(t, newFakeBus(), logger)

	err := c.Run(context.Background(), func(context.Context) error {
		c.Post(c.AskExit)
		panic("setup exploded")
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if logger.Count("ERROR caught panic in setup") != 1 {
		t.Error("setup panic not logged")
	}
}

// =============================================================================
// Post / publish / tasks
// =============================================================================

func TestPost_RunsInOrderOnLoop(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)

	var got []int
	for i := range 5 {
		c.Post(func() { got = append(got, i) })
	}
	c.Post(c.AskExit)

	if err := c.Finish(context.Background()); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("posted order = %v", got)
	}
}

func TestPost_FromManyGoroutines(t *testing.T) {
	c := newTestController(t, newFakeBus(), nil)
	errCh := startLoop(t, c)

	const n = 100
	count := 0
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Post(func() { count++ })
		}()
	}
	wg.Wait()

	finished := make(chan int, 1)
	c.Post(func() { finished <- count })
	select {
	case got := <-finished:
		if got != n {
			t.Errorf("count = %d, want %d", got, n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("posted work not run")
	}
	stopLoop(t, c, errCh)
}

func TestPost_PanicRecovered(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestController(t, newFakeBus(), logger)

	ran := false
	c.Post(func() { panic("bad") })
	c.Post(func() { ran = true })
	c.Post(c.AskExit)

	if err := c.Finish(context.Background()); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !ran {
		t.Error("work after a panic did not run")
	}
	if logger.Count("ERROR caught panic in posted function") != 1 {
		t.Error("panic not logged")
	}
}

func TestPublishHelpers(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	c.PublishBool("t/bool", true, true)
	c.PublishBool("t/bool", false, false)
	c.PublishFloat("t/float", 21.5, true)
	c.PublishString("t/str", "New", true)

	want := []publishRecord{
		{"t/bool", "True", DefaultQoS, true},
		{"t/bool", "False", DefaultQoS, false},
		{"t/float", "21.5", DefaultQoS, true},
		{"t/str", "New", DefaultQoS, true},
	}
	if got := bus.Published(); !slices.Equal(got, want) {
		t.Errorf("published = %+v, want %+v", got, want)
	}
}

func TestParseBool(t *testing.T) {
	tests := map[string]bool{
		"True":  true,
		"False": false,
		"true":  false,
		"1":     false,
		"":      false,
	}
	for in, want := range tests {
		if got := ParseBool([]byte(in)); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartTask_CleanupCancelsAndWaits(t *testing.T) {
	bus := newFakeBus()
	c := newTestController(t, bus, nil)

	task := c.StartTask("poller", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		bus.record("task exited")
	})

	errCh := startLoop(t, c)
	stopLoop(t, c, errCh)

	select {
	case <-task.Done():
	default:
		t.Fatal("task still running after shutdown")
	}
	want := []string{"task exited", "disconnect"}
	if got := bus.Events(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStartTask_PanicRecovered(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestController(t, newFakeBus(), logger)

	task := c.StartTask("broken", func(context.Context) { panic("oops") })

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
	if logger.Count("ERROR caught panic in task") != 1 {
		t.Error("task panic not logged")
	}
	if err := task.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateResubscribing.String() != "resubscribing" {
		t.Errorf("StateResubscribing.String() = %q", StateResubscribing.String())
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
