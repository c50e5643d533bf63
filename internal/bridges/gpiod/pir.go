package gpiod

import (
	"context"
	"fmt"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
)

// NewPIRs publishes motion from every PIR pin. Motion is an event, so
// it is never retained; the initial state is "no motion".
func NewPIRs(bus Bus, driver gpio.Driver, cfg config.PIRConfig, logger Logger) error {
	logger = orNoop(logger)
	for _, pin := range cfg.Pins {
		in, err := driver.Input(pin, gpio.PullDown)
		if err != nil {
			return fmt.Errorf("pir on pin %d: %w", pin, err)
		}

		topic := mqtt.Topics{}.PIRState(bus.Host(), pin)
		logger.Info("setting up pir", "pin", pin, "topic", topic)
		bus.PublishBool(topic, false, false)

		bus.StartTask(fmt.Sprintf("pir %d", pin), func(ctx context.Context) {
			watch(ctx, in, func(motion bool) {
				logger.Debug("pir", "pin", pin, "motion", motion)
				bus.Post(func() { bus.PublishBool(topic, motion, false) })
			})
		})
	}
	return nil
}
