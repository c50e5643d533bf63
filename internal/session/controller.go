package session

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Controller defaults.
const (
	// DefaultRetryDelay is the pause between failed connection attempts.
	DefaultRetryDelay = time.Second

	// DefaultQoS is exactly-once delivery.
	DefaultQoS byte = 2
)

// BusClient is the broker connection the controller drives.
// *mqtt.Client satisfies it.
type BusClient interface {
	// Connect makes a single connection attempt.
	Connect(ctx context.Context) error

	// Disconnect closes the connection gracefully.
	Disconnect() error

	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte) error
	IsConnected() bool

	// SetOnConnect is called on the initial connect and every reconnect.
	SetOnConnect(callback func())

	// SetOnDisconnect is called when the connection is lost.
	SetOnDisconnect(callback func(err error))

	// SetOnMessage receives every inbound message.
	SetOnMessage(callback func(topic string, payload []byte))
}

// Options holds configuration for creating a Controller.
type Options struct {
	// Bus is the broker connection. Required.
	Bus BusClient

	// Host namespaces per-host topics. Defaults to os.Hostname().
	Host string

	// Logger is optional structured logger.
	Logger Logger

	// QoS for every publish and subscription. Defaults to DefaultQoS.
	QoS *byte

	// RetryDelay between failed connection attempts. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration

	// HandleSignals makes SIGINT and SIGTERM call AskExit.
	HandleSignals bool
}

// Controller owns the broker session and the event loop.
//
// Thread Safety: Post, AskExit, Publish and the registration methods are
// safe from any goroutine. Handlers and posted work run on the loop
// goroutine only.
type Controller struct {
	bus        BusClient
	host       string
	logger     Logger
	qos        byte
	retryDelay time.Duration
	signals    bool

	// sleep waits between connection attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	state atomic.Int32

	// subMu serialises Subscribe with the reconnect replay so every
	// subscription is issued exactly once per connection.
	subMu         sync.Mutex
	subscriptions []string
	connected     bool

	regMu    sync.Mutex
	handlers []handlerEntry
	cleanups []Cleaner

	mailbox *mailbox

	// loopCtx is the context given to Finish; only read on the loop goroutine.
	loopCtx context.Context

	wireOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
	closed   chan struct{}
}

// New creates a controller. Call Run, or Connect then Finish.
func New(opts Options) (*Controller, error) {
	if opts.Bus == nil {
		return nil, ErrNoBus
	}

	host := opts.Host
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving hostname: %w", err)
		}
		host = h
	}

	qos := DefaultQoS
	if opts.QoS != nil {
		qos = *opts.QoS
	}

	retry := opts.RetryDelay
	if retry <= 0 {
		retry = DefaultRetryDelay
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	c := &Controller{
		bus:        opts.Bus,
		host:       host,
		logger:     logger,
		qos:        qos,
		retryDelay: retry,
		signals:    opts.HandleSignals,
		mailbox:    newMailbox(),
		loopCtx:    context.Background(),
		stop:       make(chan struct{}),
		closed:     make(chan struct{}),
	}
	c.sleep = c.sleepOrStop
	return c, nil
}

// Host returns the identity used to namespace per-host topics.
func (c *Controller) Host() string {
	return c.host
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Stopped is closed once the stop signal fires.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stop
}

// AskExit sets the stop signal. Safe to call any number of times.
func (c *Controller) AskExit() {
	c.stopOnce.Do(func() {
		c.logger.Warn("asked to exit")
		if s := c.State(); s != StateCleaningUp && s != StateClosed {
			c.setState(StateStopSignalled)
		}
		close(c.stop)
	})
}

// Run connects, runs setup, then loops until the stop signal and shuts down.
//
// Errors and panics from setup are logged, not returned: one broken
// subsystem must not take the bridge down.
//
// Returns:
//   - error: ErrStopped if the process was asked to exit before connecting
func (c *Controller) Run(ctx context.Context, setup func(ctx context.Context) error) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	if setup != nil {
		c.runGuarded("setup", func() {
			if err := setup(ctx); err != nil {
				c.logger.Warn("setup failed", "error", err)
			}
		})
	}

	return c.Finish(ctx)
}

// Connect connects to the broker, retrying forever.
//
// It installs the bus callbacks and, when enabled, the SIGINT/SIGTERM
// handlers. Each failure is logged at warning level and followed by a
// fixed delay. Connect returns nil once connected; it returns ErrStopped
// only if the stop signal fires or ctx ends first.
func (c *Controller) Connect(ctx context.Context) error {
	c.wireOnce.Do(c.wire)
	c.setState(StateConnecting)

	for attempt := 1; ; attempt++ {
		select {
		case <-c.stop:
			c.setState(StateDisconnected)
			return ErrStopped
		default:
		}

		err := c.bus.Connect(ctx)
		if err == nil {
			c.setState(StateConnected)
			c.logger.Info("connected to broker", "host", c.host, "attempts", attempt)
			return nil
		}

		c.logger.Warn("error trying to connect, retrying",
			"attempt", attempt,
			"delay", c.retryDelay,
			"error", err,
		)

		if err := c.sleep(ctx, c.retryDelay); err != nil {
			c.setState(StateDisconnected)
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
	}
}

// sleepOrStop waits d, returning early with an error on ctx end or stop.
func (c *Controller) sleepOrStop(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrStopped
	}
}

// wire installs bus callbacks and signal handlers. Runs once.
func (c *Controller) wire() {
	c.bus.SetOnConnect(func() {
		c.Post(c.handleConnected)
	})
	c.bus.SetOnDisconnect(func(err error) {
		c.Post(func() { c.handleDisconnected(err) })
	})
	c.bus.SetOnMessage(func(topic string, payload []byte) {
		c.Post(func() { c.OnMessage(c.loopCtx, topic, payload) })
	})

	if c.signals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			defer signal.Stop(sigCh)
			select {
			case sig := <-sigCh:
				c.logger.Warn("received signal", "signal", sig.String())
				c.AskExit()
			case <-c.closed:
			}
		}()
	}
}

// Finish runs the event loop until the stop signal, then shuts down.
//
// Shutdown runs every cleanup callback concurrently, waits for all of
// them, and only then disconnects from the broker. Cancelling ctx is
// treated as a stop request.
func (c *Controller) Finish(ctx context.Context) error {
	c.loopCtx = ctx
	if c.State() == StateConnected {
		c.setState(StateRunning)
	}

	c.logger.Debug("waiting for stop event")
	done := ctx.Done()
	for {
		select {
		case <-c.stop:
			return c.shutdown(ctx)
		case <-done:
			done = nil
			c.AskExit()
		case <-c.mailbox.ready:
			c.runMailbox()
		}
	}
}

func (c *Controller) shutdown(ctx context.Context) error {
	c.logger.Debug("stop received, cleaning up")
	c.setState(StateCleaningUp)

	// Cleanups must run to completion even when ctx is what stopped us.
	c.runCleanups(context.WithoutCancel(ctx))

	if err := c.bus.Disconnect(); err != nil {
		c.logger.Warn("disconnect failed", "error", err)
	}

	c.subMu.Lock()
	c.connected = false
	c.subMu.Unlock()

	c.setState(StateClosed)
	close(c.closed)
	c.logger.Debug("client disconnected")
	return nil
}

// runGuarded runs fn, logging any panic with its stack.
func (c *Controller) runGuarded(what string, fn func()) {
	defer c.recoverPanic(what)
	fn()
}

func (c *Controller) recoverPanic(what string, args ...any) {
	if r := recover(); r != nil {
		args = append(args, "panic", r, "stack", string(debug.Stack()))
		c.logger.Error("caught panic in "+what, args...)
	}
}
