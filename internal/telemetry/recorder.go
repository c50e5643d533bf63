// Package telemetry copies sensor readings seen on the bus into a
// time-series store.
package telemetry

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// Writer stores readings. *influxdb.Client satisfies it.
type Writer interface {
	WriteReading(topic string, value float64, at time.Time)
	WriteState(topic string, on bool, at time.Time)
	Flush()
	Close() error
}

// Bus is the part of the session controller the recorder uses.
type Bus interface {
	Subscribe(topic string)
	AddAsyncHandler(h session.AsyncHandler)
	AddCleanupCallback(cb session.Cleaner)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Recorder writes every numeric or boolean sensor payload to a Writer.
// Other payloads (alerts, "New", JSON) are left for other handlers.
type Recorder struct {
	w      Writer
	logger Logger
	now    func() time.Time
}

// Start subscribes to every sensor topic and records what arrives.
// The writer is flushed and closed at shutdown.
func Start(bus Bus, w Writer, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Recorder{w: w, logger: logger, now: time.Now}

	bus.Subscribe(mqtt.Topics{}.AllSensors())
	bus.Subscribe(mqtt.Topics{}.AllNamedSensors())
	bus.AddAsyncHandler(r)
	bus.AddCleanupCallback(r)
	return r
}

// HandleMessageAsync records the payload if it is a reading.
func (r *Recorder) HandleMessageAsync(_ context.Context, topic string, payload []byte) bool {
	if !isSensorTopic(topic) {
		return false
	}

	s := strings.TrimSpace(string(payload))
	switch s {
	case session.PayloadTrue:
		r.w.WriteState(topic, true, r.now())
		return true
	case session.PayloadFalse:
		r.w.WriteState(topic, false, r.now())
		return true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.logger.Debug("not recording", "topic", topic, "payload", s)
		return false
	}
	r.w.WriteReading(topic, v, r.now())
	return true
}

// Cleanup flushes buffered points and closes the writer.
func (r *Recorder) Cleanup(context.Context) error {
	r.w.Flush()
	return r.w.Close()
}

func isSensorTopic(topic string) bool {
	return strings.HasPrefix(topic, mqtt.TopicRootSensor+"/") ||
		strings.HasPrefix(topic, mqtt.TopicRootNamed+"/"+mqtt.TopicRootSensor+"/")
}
