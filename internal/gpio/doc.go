// Package gpio gives the bridges access to GPIO lines and I2C devices.
//
// Bridges depend on the Driver interface; Periph implements it on a
// Raspberry Pi (or any board periph.io supports). Pins are identified by
// their BCM GPIO number, as in config.yaml.
//
// Outputs are logical: an inverted relay is "on" when its line is low.
package gpio
