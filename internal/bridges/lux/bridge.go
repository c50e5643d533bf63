package lux

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// Bus is the part of the session controller the light sensor uses.
// *session.Controller satisfies it.
type Bus interface {
	Host() string
	PublishString(topic string, s string, retain bool)
	Post(fn func())
	StartTask(name string, fn func(ctx context.Context)) *session.Task
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Reader takes a single lux measurement.
type Reader interface {
	Read(ctx context.Context) (float64, error)
	Close() error
}

// Start opens the configured TSL2561 and polls it on a session task.
// The device is closed when the task stops.
func Start(bus Bus, driver gpio.Driver, cfg config.TSL2561Config, logger Logger) error {
	dev, err := driver.I2C(cfg.Bus, cfg.Address)
	if err != nil {
		return err
	}
	topic := mqtt.Topics{}.Lux(bus.Host(), cfg.Bus, cfg.Address)
	poll(bus, NewSensor(dev), topic, cfg.PeriodDuration(), logger)
	return nil
}

func poll(bus Bus, r Reader, topic string, period time.Duration, logger Logger) *session.Task {
	if logger == nil {
		logger = noopLogger{}
	}

	return bus.StartTask("tsl2561", func(ctx context.Context) {
		defer func() {
			if err := r.Close(); err != nil {
				logger.Warn("closing light sensor", "error", err)
			}
			logger.Debug("light sensor stopped")
		}()

		for {
			lux, err := r.Read(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				logger.Warn("light sensor read failed", "topic", topic, "error", err)
			default:
				logger.Debug("light sensor", "lux", lux)
				payload := strconv.Itoa(int(lux))
				bus.Post(func() { bus.PublishString(topic, payload, true) })
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(period):
			}
		}
	})
}
