package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// Periph is a Driver backed by periph.io host drivers.
type Periph struct{}

// NewPeriph loads the host drivers. Safe to call more than once.
func NewPeriph() (*Periph, error) {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("%w: %w", ErrHostInit, err)
		}
	})
	if hostErr != nil {
		return nil, hostErr
	}
	return &Periph{}, nil
}

func lookup(pin int) (pgpio.PinIO, error) {
	line := gpioreg.ByName(strconv.Itoa(pin))
	if line == nil {
		return nil, fmt.Errorf("%w: %d", ErrPinNotFound, pin)
	}
	return line, nil
}

// Output claims pin as an output and drives it off.
func (p *Periph) Output(pin int, inverted bool) (Output, error) {
	line, err := lookup(pin)
	if err != nil {
		return nil, err
	}

	o := &periphOutput{line: line, pin: pin, inverted: inverted}
	if err := o.Set(false); err != nil {
		return nil, fmt.Errorf("configuring output %d: %w", pin, err)
	}
	return o, nil
}

// Input claims pin as an input watching both edges.
func (p *Periph) Input(pin int, pull Pull) (Input, error) {
	line, err := lookup(pin)
	if err != nil {
		return nil, err
	}

	if err := line.In(periphPull(pull), pgpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configuring input %d: %w", pin, err)
	}
	return &periphInput{line: line, pin: pin}, nil
}

// I2C opens addr on the numbered bus.
func (p *Periph) I2C(bus int, addr uint16) (I2CDevice, error) {
	b, err := i2creg.Open(strconv.Itoa(bus))
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %d: %w", bus, err)
	}
	return &periphI2C{bus: b, dev: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func periphPull(p Pull) pgpio.Pull {
	switch p {
	case PullUp:
		return pgpio.PullUp
	case PullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}

type periphOutput struct {
	line     pgpio.PinIO
	pin      int
	inverted bool
}

func (o *periphOutput) Set(on bool) error {
	return o.line.Out(pgpio.Level(on != o.inverted))
}

func (o *periphOutput) Value() bool {
	return bool(o.line.Read()) != o.inverted
}

func (o *periphOutput) Pin() int { return o.pin }

type periphInput struct {
	line pgpio.PinIO
	pin  int
}

func (i *periphInput) Value() bool {
	return bool(i.line.Read())
}

func (i *periphInput) WaitForEdge(timeout time.Duration) bool {
	return i.line.WaitForEdge(timeout)
}

func (i *periphInput) Pin() int { return i.pin }

type periphI2C struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

func (d *periphI2C) Tx(w, r []byte) error {
	return d.dev.Tx(w, r)
}

func (d *periphI2C) Close() error {
	return d.bus.Close()
}
