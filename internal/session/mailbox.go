package session

import "sync"

// mailbox is an unbounded FIFO of work for the loop goroutine.
// push never blocks, so it is safe from paho callbacks and GPIO watchers.
type mailbox struct {
	mu    sync.Mutex
	items []func()
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far.
func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Post schedules fn to run on the loop goroutine.
//
// Work runs in the order posted, one item at a time, once Finish is
// looping. Post never blocks and may be called from any goroutine.
func (c *Controller) Post(fn func()) {
	if fn == nil {
		return
	}
	c.mailbox.push(fn)
}

// runMailbox runs everything queued so far, recovering panics per item.
func (c *Controller) runMailbox() {
	for _, fn := range c.mailbox.take() {
		c.runGuarded("posted function", fn)
	}
}
