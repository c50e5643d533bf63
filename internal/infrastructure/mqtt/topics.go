package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
//
// Hardware adapters publish under per-host roots keyed by GPIO pin or
// device serial. Logic that works with named things (zones, relays by
// what they control, switches by what operates them) lives under "named".
const (
	TopicRootSensor  = "sensor"
	TopicRootControl = "control"
	TopicRootInfo    = "info"
	TopicRootAlert   = "alert"
	TopicRootNamed   = "named"
)

// Topics provides builders for sensor2mqtt topics.
// Using these helpers keeps topic naming consistent across adapters.
//
//	topics := mqtt.Topics{}
//	topics.RelayState("pi-boiler", 17)
//	// Returns: "sensor/gpiod/relay/pi-boiler/17"
type Topics struct{}

// =============================================================================
// Per-host hardware topics
// =============================================================================

// RelayControl returns the command topic for a GPIO relay.
//
// Example: control/relay/pi-boiler/17
func (Topics) RelayControl(host string, pin int) string {
	return fmt.Sprintf("%s/relay/%s/%d", TopicRootControl, host, pin)
}

// AllRelayControls returns a pattern matching every relay command for a host.
//
// Pattern: control/relay/pi-boiler/#
func (Topics) AllRelayControls(host string) string {
	return fmt.Sprintf("%s/relay/%s/#", TopicRootControl, host)
}

// RelayState returns the topic a GPIO relay reports its level on.
//
// Example: sensor/gpiod/relay/pi-boiler/17
func (Topics) RelayState(host string, pin int) string {
	return fmt.Sprintf("%s/gpiod/relay/%s/%d", TopicRootSensor, host, pin)
}

// SwitchState returns the topic a GPIO switch reports on.
//
// Example: sensor/switch/pi-boiler/5
func (Topics) SwitchState(host string, pin int) string {
	return fmt.Sprintf("%s/switch/%s/%d", TopicRootSensor, host, pin)
}

// PIRState returns the topic a motion sensor reports on.
//
// Example: sensor/pir/pi-hall/4
func (Topics) PIRState(host string, pin int) string {
	return fmt.Sprintf("%s/pir/%s/%d", TopicRootSensor, host, pin)
}

// Lux returns the topic an I2C light sensor reports on.
//
// Example: sensor/i2c/lux/pi-garden/1/41
func (Topics) Lux(host string, bus int, addr uint16) string {
	return fmt.Sprintf("%s/i2c/lux/%s/%d/%d", TopicRootSensor, host, bus, addr)
}

// TemperatureReading returns the reading topic for a 1-wire probe.
//
// Example: sensor/w1/temperature/28-0316a2795cff
func (Topics) TemperatureReading(serial string) string {
	return fmt.Sprintf("%s/w1/temperature/%s", TopicRootSensor, serial)
}

// TemperatureInfo returns the topic a newly seen probe is announced on.
//
// Example: info/w1/temperature/28-0316a2795cff
func (Topics) TemperatureInfo(serial string) string {
	return fmt.Sprintf("%s/w1/temperature/%s", TopicRootInfo, serial)
}

// TemperatureAlert returns the topic probe failures are reported on.
//
// Example: alert/w1/temperature/28-0316a2795cff
func (Topics) TemperatureAlert(serial string) string {
	return fmt.Sprintf("%s/w1/temperature/%s", TopicRootAlert, serial)
}

// Status returns the retained lifecycle topic for a bridge instance.
//
// Example: info/sensor2mqtt/pi-boiler/status
func (Topics) Status(host string) string {
	return fmt.Sprintf("%s/sensor2mqtt/%s/status", TopicRootInfo, host)
}

// =============================================================================
// Named topics
// =============================================================================

// NamedRelayControl returns the command topic for a relay by what it controls.
//
// Example: named/control/relay/boiler
func (Topics) NamedRelayControl(controls string) string {
	return fmt.Sprintf("%s/control/relay/%s", TopicRootNamed, controls)
}

// NamedSwitchState returns the topic for a switch by what operates it.
//
// Example: named/sensor/switch/lounge-valve
func (Topics) NamedSwitchState(operatedBy string) string {
	return fmt.Sprintf("%s/sensor/switch/%s", TopicRootNamed, operatedBy)
}

// HeatingZoneControl returns the demand topic for a heating zone.
//
// Example: named/control/heating/zone/lounge
func (Topics) HeatingZoneControl(zone string) string {
	return fmt.Sprintf("%s/control/heating/zone/%s", TopicRootNamed, zone)
}

// HeatingZoneState returns the topic a heating zone announces its state on.
//
// Example: named/sensor/heating/zone/lounge
func (Topics) HeatingZoneState(zone string) string {
	return fmt.Sprintf("%s/sensor/heating/zone/%s", TopicRootNamed, zone)
}

// OccupancyZoneControl returns the command topic for a zone's occupancy.
//
// Example: named/control/occupancy/zone/lounge
func (Topics) OccupancyZoneControl(zone string) string {
	return fmt.Sprintf("%s/control/occupancy/zone/%s", TopicRootNamed, zone)
}

// OccupancyZoneState returns the topic a zone's occupancy is announced on.
//
// Example: named/sensor/occupancy/zone/lounge
func (Topics) OccupancyZoneState(zone string) string {
	return fmt.Sprintf("%s/sensor/occupancy/zone/%s", TopicRootNamed, zone)
}

// PondControl returns the command topic for a pond device.
//
// Example: named/control/pond/Skimmer
func (Topics) PondControl(device string) string {
	return fmt.Sprintf("%s/control/pond/%s", TopicRootNamed, device)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllHeatingZoneControls returns a pattern matching every zone demand topic.
//
// Pattern: named/control/heating/zone/#
func (Topics) AllHeatingZoneControls() string {
	return fmt.Sprintf("%s/control/heating/zone/#", TopicRootNamed)
}

// AllOccupancyZoneControls returns a pattern matching every occupancy command.
//
// Pattern: named/control/occupancy/zone/#
func (Topics) AllOccupancyZoneControls() string {
	return fmt.Sprintf("%s/control/occupancy/zone/#", TopicRootNamed)
}

// AllSensors returns a pattern matching every hardware reading.
//
// Pattern: sensor/#
func (Topics) AllSensors() string {
	return TopicRootSensor + "/#"
}

// AllNamedSensors returns a pattern matching every named reading.
//
// Pattern: named/sensor/#
func (Topics) AllNamedSensors() string {
	return TopicRootNamed + "/sensor/#"
}

// Split breaks a topic into its levels.
func Split(topic string) []string {
	return strings.Split(topic, "/")
}
