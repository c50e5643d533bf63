package gpiod

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

type relay struct {
	out        gpio.Output
	stateTopic string
}

// Relays drives GPIO relays from control/relay/<host>/<pin> commands.
type Relays struct {
	bus    Bus
	logger Logger
	relays map[string]*relay
}

// NewRelays claims every configured relay pin, publishes its initial
// (off) state and starts listening for commands.
//
// Returns:
//   - error: if a pin cannot be claimed; no relays are registered then
func NewRelays(bus Bus, driver gpio.Driver, cfg config.RelaysConfig, logger Logger) (*Relays, error) {
	r := &Relays{
		bus:    bus,
		logger: orNoop(logger),
		relays: make(map[string]*relay),
	}

	add := func(pin int, inverted bool) error {
		out, err := driver.Output(pin, inverted)
		if err != nil {
			return fmt.Errorf("relay on pin %d: %w", pin, err)
		}
		r.logger.Info("making relay", "pin", pin, "inverted", inverted)
		r.relays[strconv.Itoa(pin)] = &relay{
			out:        out,
			stateTopic: mqtt.Topics{}.RelayState(bus.Host(), pin),
		}
		return nil
	}
	for _, p := range cfg.Pins {
		if err := add(p, false); err != nil {
			return nil, err
		}
	}
	for _, p := range cfg.InvertedPins {
		if err := add(p, true); err != nil {
			return nil, err
		}
	}

	for _, rl := range r.relays {
		bus.PublishBool(rl.stateTopic, rl.out.Value(), true)
	}
	bus.Subscribe(mqtt.Topics{}.AllRelayControls(bus.Host()))
	bus.AddHandler(r)
	return r, nil
}

// HandleMessage sets a relay and publishes its resulting level.
// Every relay command for this host is claimed, including unknown pins.
func (r *Relays) HandleMessage(topic string, payload []byte) bool {
	parts := mqtt.Split(topic)
	if len(parts) != 4 || parts[0] != mqtt.TopicRootControl || parts[1] != "relay" || parts[2] != r.bus.Host() {
		return false
	}

	pin := parts[3]
	rl, ok := r.relays[pin]
	if !ok {
		r.logger.Warn("attempt to control unknown relay", "pin", pin)
		return true
	}

	v := session.ParseBool(payload)
	r.logger.Debug("setting relay", "pin", pin, "state", v)
	if err := rl.out.Set(v); err != nil {
		r.logger.Error("setting relay failed", "pin", pin, "error", err)
	}
	r.bus.PublishBool(rl.stateTopic, rl.out.Value(), true)
	return true
}
