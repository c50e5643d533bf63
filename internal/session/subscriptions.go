package session

import "slices"

// Subscribe adds topic to the subscription set.
//
// A topic already in the set is ignored. While connected the
// subscription is issued at once; otherwise it goes out with the rest
// of the set on the next connect.
func (c *Controller) Subscribe(topic string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if slices.Contains(c.subscriptions, topic) {
		return
	}
	c.subscriptions = append(c.subscriptions, topic)

	if c.connected {
		c.issueSubscribe(topic)
	}
}

// Subscriptions returns the subscription set in registration order.
func (c *Controller) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return slices.Clone(c.subscriptions)
}

// issueSubscribe sends one subscription. Caller holds subMu.
func (c *Controller) issueSubscribe(topic string) {
	c.logger.Debug("subscribing", "topic", topic)
	if err := c.bus.Subscribe(topic, c.qos); err != nil {
		c.logger.Warn("subscribe failed", "topic", topic, "error", err)
	}
}

// handleConnected runs on the loop after every (re)connect. It replays
// the whole subscription set in order before the loop takes the next
// item, so no message for the new connection is dispatched first.
func (c *Controller) handleConnected() {
	prev := c.State()
	c.setState(StateResubscribing)

	c.subMu.Lock()
	for _, topic := range c.subscriptions {
		c.issueSubscribe(topic)
	}
	c.connected = true
	n := len(c.subscriptions)
	c.subMu.Unlock()

	switch prev {
	case StateStopSignalled, StateCleaningUp, StateClosed:
		c.setState(prev)
	default:
		c.setState(StateRunning)
	}
	c.logger.Debug("connected and subscribed", "subscriptions", n)
}

// handleDisconnected runs on the loop when the connection drops. The
// broker client reconnects by itself; handleConnected follows.
func (c *Controller) handleDisconnected(err error) {
	c.subMu.Lock()
	c.connected = false
	c.subMu.Unlock()

	if s := c.State(); s == StateRunning || s == StateConnected {
		c.setState(StateConnecting)
	}
	c.logger.Warn("disconnected from broker", "error", err)
}
