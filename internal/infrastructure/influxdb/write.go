package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement every reading is written to.
const Measurement = "sensor"

// WriteReading records a numeric reading published on topic.
//
// Example:
//
//	client.WriteReading("sensor/w1/temperature/28-0316a2795cff", 21.5, time.Now())
func (c *Client) WriteReading(topic string, value float64, at time.Time) {
	c.write(topic, "value", value, at)
}

// WriteState records an on/off reading published on topic.
func (c *Client) WriteState(topic string, on bool, at time.Time) {
	c.write(topic, "state", on, at)
}

func (c *Client) write(topic, field string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newPoint(topic, field, value, at))
}

func newPoint(topic, field string, value any, at time.Time) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"source": Source(topic),
			"topic":  topic,
		},
		map[string]any{field: value},
		at,
	)
}

// Source returns the bridge kind of a sensor topic: the segment after
// the sensor root, skipping a leading "named".
//
// Example: sensor/w1/temperature/28-0316a2795cff -> w1
func Source(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 0 && parts[0] == "named" {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
