package gpio

import "errors"

var (
	// ErrPinNotFound is returned when the board has no such GPIO line.
	ErrPinNotFound = errors.New("gpio: pin not found")

	// ErrHostInit is returned when the host drivers fail to load.
	ErrHostInit = errors.New("gpio: host init failed")
)
