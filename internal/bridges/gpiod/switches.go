package gpiod

import (
	"context"
	"fmt"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
)

// NewSwitches publishes the level of every switch pin now and on every
// change. Retained, so late subscribers see the current position.
func NewSwitches(bus Bus, driver gpio.Driver, cfg config.SwitchesConfig, logger Logger) error {
	logger = orNoop(logger)
	for _, pin := range cfg.Pins {
		in, err := driver.Input(pin, gpio.PullDown)
		if err != nil {
			return fmt.Errorf("switch on pin %d: %w", pin, err)
		}

		topic := mqtt.Topics{}.SwitchState(bus.Host(), pin)
		logger.Info("making switch", "pin", pin, "topic", topic)
		bus.PublishBool(topic, in.Value(), true)

		bus.StartTask(fmt.Sprintf("switch %d", pin), func(ctx context.Context) {
			watch(ctx, in, func(v bool) {
				logger.Debug("switch changed", "pin", pin, "closed", v)
				bus.Post(func() { bus.PublishBool(topic, v, true) })
			})
		})
	}
	return nil
}
