// Package sessiontest runs a real session.Controller against an
// in-memory bus client, for testing adapters that sit on the session.
package sessiontest

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// waitTimeout bounds every wait in this package.
const waitTimeout = 5 * time.Second

// Message is one publish seen by the Client.
type Message struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// Client is an in-memory session.BusClient. Connect always succeeds.
type Client struct {
	mu            sync.Mutex
	connected     bool
	published     []Message
	subscriptions []string
	onConnect     func()
	onDisconnect  func(error)
	onMessage     func(string, []byte)
}

func (c *Client) Connect(context.Context) error {
	c.mu.Lock()
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, Message{topic, string(payload), qos, retained})
	return nil
}

func (c *Client) Subscribe(topic string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, topic)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = cb
}

func (c *Client) SetOnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

func (c *Client) SetOnMessage(cb func(string, []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = cb
}

// Published returns every publish so far.
func (c *Client) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.published)
}

// PublishedTo returns the payloads published to topic, in order.
func (c *Client) PublishedTo(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.published {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Last returns the latest publish to topic.
func (c *Client) Last(topic string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i], true
		}
	}
	return Message{}, false
}

// Subscriptions returns every subscription issued so far.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscriptions)
}

// Reset forgets recorded publishes.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = nil
}

// Harness is a connected controller with its loop running.
type Harness struct {
	*session.Controller
	Client *Client

	t        testing.TB
	done     chan error
	stopOnce sync.Once
}

// New connects a controller for host and runs its loop until Stop or
// the end of the test.
func New(t testing.TB, host string) *Harness {
	t.Helper()

	client := &Client{}
	ctrl, err := session.New(session.Options{Bus: client, Host: host})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	if err := ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	h := &Harness{Controller: ctrl, Client: client, t: t, done: make(chan error, 1)}
	go func() { h.done <- ctrl.Finish(context.Background()) }()
	t.Cleanup(h.Stop)
	return h
}

// Stop asks the controller to exit and waits for cleanups and disconnect.
func (h *Harness) Stop() {
	h.stopOnce.Do(func() {
		h.AskExit()
		select {
		case err := <-h.done:
			if err != nil {
				h.t.Errorf("Finish() error = %v", err)
			}
		case <-time.After(waitTimeout):
			h.t.Error("controller did not shut down")
		}
	})
}

// Do runs fn on the loop and waits for it.
func (h *Harness) Do(fn func()) {
	h.t.Helper()
	finished := make(chan struct{})
	h.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
	case <-time.After(waitTimeout):
		h.t.Fatal("posted work did not run")
	}
}

// Sync waits until everything posted so far has run.
func (h *Harness) Sync() {
	h.t.Helper()
	h.Do(func() {})
}

// Deliver feeds an inbound message through the loop and waits for dispatch.
func (h *Harness) Deliver(topic, payload string) {
	h.t.Helper()
	h.Client.mu.Lock()
	cb := h.Client.onMessage
	h.Client.mu.Unlock()
	cb(topic, []byte(payload))
	h.Sync()
}

// WaitFor polls until PublishedTo(topic) has a publish of payload.
func (h *Harness) WaitFor(topic, payload string) {
	h.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		if slices.Contains(h.Client.PublishedTo(topic), payload) {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("no publish of %q to %s; got %v", payload, topic, h.Client.PublishedTo(topic))
		}
		time.Sleep(time.Millisecond)
	}
}
