// Package lux reads a TSL2561 ambient light sensor over I2C and
// publishes the illuminance in lux.
//
// Each poll powers the sensor up, waits one integration period, reads
// both photodiode channels and powers it down again. A saturated channel
// is reported as an error and nothing is published for that poll.
package lux
