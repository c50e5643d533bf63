package mqtt

import (
	"fmt"
)

// Subscribe asks the broker for messages on a topic filter.
//
// Matching messages are delivered to the OnMessage callback. The
// subscription is not tracked here; callers replay their own set after
// a reconnect.
//
// Parameters:
//   - topic: The topic filter, MQTT wildcards allowed
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	// nil callback: paho routes to the default publish handler.
	token := c.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
