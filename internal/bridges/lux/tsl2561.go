package lux

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
)

// Register map and control values.
const (
	regCommand = 0x80
	regControl = 0x00
	regTiming  = 0x01
	regChan0   = 0x0C
	regChan1   = 0x0E

	powerOn  = 0x03
	powerOff = 0x00

	integrate101ms = 0x01
	gainHigh       = 0x10

	// integration101ms is rounded to the nominal period; settle covers
	// the gap between it and the real 101ms conversion.
	integration101ms = 100 * time.Millisecond
	settle           = 10 * time.Millisecond

	// Readings at 101ms are scaled to the 402ms reference; gain is 16x
	// already so there is no gain scaling.
	channelScale = 400.0 / 100.0 * (16.0 / 16.0)

	saturated = 0xFFFF
)

var (
	// ErrSaturated is returned when a channel is at full scale.
	ErrSaturated = errors.New("lux: sensor saturated")
)

// Sensor is a TSL2561 on an I2C device.
type Sensor struct {
	dev   gpio.I2CDevice
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSensor wraps an opened I2C device.
func NewSensor(dev gpio.I2CDevice) *Sensor {
	return &Sensor{dev: dev, sleep: sleepCtx}
}

// Read takes one measurement and returns it in lux.
func (s *Sensor) Read(ctx context.Context) (float64, error) {
	if err := s.write(regTiming, integrate101ms|gainHigh); err != nil {
		return 0, err
	}
	if err := s.write(regControl, powerOn); err != nil {
		return 0, err
	}
	defer s.write(regControl, powerOff) //nolint:errcheck // best effort power down

	if err := s.sleep(ctx, integration101ms+settle); err != nil {
		return 0, err
	}

	full, err := s.readWord(regChan0)
	if err != nil {
		return 0, err
	}
	ir, err := s.readWord(regChan1)
	if err != nil {
		return 0, err
	}
	if full == saturated || ir == saturated {
		return 0, ErrSaturated
	}

	return Lux(float64(full)*channelScale, float64(ir)*channelScale), nil
}

// Close releases the I2C device.
func (s *Sensor) Close() error {
	return s.dev.Close()
}

func (s *Sensor) write(reg, value byte) error {
	if err := s.dev.Tx([]byte{regCommand | reg, value}, nil); err != nil {
		return fmt.Errorf("writing register %#x: %w", reg, err)
	}
	return nil
}

func (s *Sensor) readWord(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{regCommand | reg}, buf); err != nil {
		return 0, fmt.Errorf("reading register %#x: %w", reg, err)
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// Lux converts scaled full-spectrum and infrared counts to lux using the
// datasheet's piecewise approximation for the T package.
func Lux(full, ir float64) float64 {
	if full == 0 {
		return 0
	}

	ratio := ir / full
	var lux float64
	switch {
	case ratio <= 0.50:
		lux = 0.0304*full - 0.062*ir*math.Pow(ratio, 1.4)
	case ratio <= 0.61:
		lux = 0.0224*full - 0.031*ir
	case ratio <= 0.80:
		lux = 0.0128*full - 0.0153*ir
	case ratio <= 1.30:
		lux = 0.00146*full - 0.00112*ir
	default:
		lux = 0
	}
	return math.Max(lux, 0)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
