package gpio

import "time"

// Pull is the bias applied to an input line.
type Pull int

// Input biases.
const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Output is a GPIO line driven by the bridge.
type Output interface {
	// Set drives the line to the logical on/off state.
	Set(on bool) error

	// Value returns the logical state.
	Value() bool

	Pin() int
}

// Input is a GPIO line the bridge watches.
type Input interface {
	// Value returns true when the line is high.
	Value() bool

	// WaitForEdge blocks until the line changes or timeout passes.
	// It reports whether an edge was seen.
	WaitForEdge(timeout time.Duration) bool

	Pin() int
}

// I2CDevice is one addressed device on an I2C bus.
type I2CDevice interface {
	// Tx writes w then reads len(r) bytes into r.
	Tx(w, r []byte) error
	Close() error
}

// Driver opens lines and devices.
type Driver interface {
	// Output claims pin as an output, initially off.
	// inverted makes on drive the line low.
	Output(pin int, inverted bool) (Output, error)

	// Input claims pin as an input with edge detection.
	Input(pin int, pull Pull) (Input, error)

	// I2C opens the device at addr on bus.
	I2C(bus int, addr uint16) (I2CDevice, error)
}
