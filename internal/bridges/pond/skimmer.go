// Package pond runs the pond skimmer: a relay with a feeding timer.
//
// "True" on named/control/pond/Skimmer energises the skimmer relay,
// which stops the pump (the relay is normally closed), and schedules it
// back off after the hold time so the fish food is not skimmed away.
// "False" restores the pump at once.
package pond

import (
	"context"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// DeviceName is the pond device key the skimmer answers to.
const DeviceName = "Skimmer"

// Bus is the part of the session controller the skimmer uses.
// *session.Controller satisfies it.
type Bus interface {
	PublishBool(topic string, v bool, retain bool)
	Subscribe(topic string)
	AddHandler(h session.Handler)
	AddCleanupCallback(cb session.Cleaner)
	Post(fn func())
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

type timer interface {
	Stop() bool
}

// Skimmer owns the skimmer relay's feeding timer.
type Skimmer struct {
	bus          Bus
	logger       Logger
	controlTopic string
	relayTopic   string
	hold         time.Duration

	timer timer
	gen   uint64

	afterFunc func(d time.Duration, f func()) timer
}

// New subscribes to the skimmer control topic and registers the skimmer
// as a handler and cleanup participant.
func New(bus Bus, cfg config.PondSkimmerConfig, logger Logger) *Skimmer {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Skimmer{
		bus:          bus,
		logger:       logger,
		controlTopic: mqtt.Topics{}.PondControl(DeviceName),
		relayTopic:   mqtt.Topics{}.NamedRelayControl(cfg.Relay),
		hold:         cfg.Hold(),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}

	bus.Subscribe(s.controlTopic)
	bus.AddHandler(s)
	bus.AddCleanupCallback(s)
	logger.Debug("set up skimmer", "relay", cfg.Relay, "hold", s.hold)
	return s
}

// HandleMessage handles feed requests.
func (s *Skimmer) HandleMessage(topic string, payload []byte) bool {
	if topic != s.controlTopic {
		return false
	}

	feed := session.ParseBool(payload)
	s.logger.Debug("skimmer", "feed", feed)
	s.cancel()

	if !feed {
		s.restore()
		return true
	}

	s.bus.PublishBool(s.relayTopic, true, true)
	gen := s.gen
	s.timer = s.afterFunc(s.hold, func() {
		s.bus.Post(func() {
			if gen == s.gen {
				s.timer = nil
				s.restore()
			}
		})
	})
	return true
}

// restore releases the relay so the pump runs again.
func (s *Skimmer) restore() {
	s.logger.Debug("skimmer back on")
	s.bus.PublishBool(s.relayTopic, false, true)
}

func (s *Skimmer) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Cleanup cancels a pending restore. The relay keeps its last state.
func (s *Skimmer) Cleanup(context.Context) error {
	s.cancel()
	s.logger.Debug("skimmer timer cancelled")
	return nil
}
