package session

import (
	"strconv"
)

// Boolean payloads are the literal text True / False.
const (
	PayloadTrue  = "True"
	PayloadFalse = "False"
)

// FormatBool renders v as a control payload.
func FormatBool(v bool) []byte {
	if v {
		return []byte(PayloadTrue)
	}
	return []byte(PayloadFalse)
}

// ParseBool reads a control payload. Only "True" is true.
func ParseBool(payload []byte) bool {
	return string(payload) == PayloadTrue
}

// FormatFloat renders v in the shortest decimal form that round-trips.
func FormatFloat(v float64) []byte {
	return strconv.AppendFloat(nil, v, 'f', -1, 64)
}

// Publish sends payload to topic at the session QoS.
//
// Failures are logged, never returned: a dropped reading is retried by
// the next one and a dropped command is visible on the state topic.
func (c *Controller) Publish(topic string, payload []byte, retain bool) {
	c.logger.Debug("publishing", "topic", topic, "payload", string(payload), "retain", retain)
	if err := c.bus.Publish(topic, payload, c.qos, retain); err != nil {
		c.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// PublishBool publishes "True" or "False".
func (c *Controller) PublishBool(topic string, v bool, retain bool) {
	c.Publish(topic, FormatBool(v), retain)
}

// PublishFloat publishes v as FormatFloat renders it.
func (c *Controller) PublishFloat(topic string, v float64, retain bool) {
	c.Publish(topic, FormatFloat(v), retain)
}

// PublishString publishes s as-is.
func (c *Controller) PublishString(topic string, s string, retain bool) {
	c.Publish(topic, []byte(s), retain)
}
