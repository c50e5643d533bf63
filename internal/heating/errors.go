package heating

import "errors"

var (
	// ErrNoBus is returned by New when Options.Bus is nil.
	ErrNoBus = errors.New("heating: bus is required")

	// ErrNoSource is returned by New when Options.Source is nil.
	ErrNoSource = errors.New("heating: zone source is required")

	// ErrInvalidOccupancy is returned when an occupancy payload cannot be parsed.
	ErrInvalidOccupancy = errors.New("heating: invalid occupancy payload")
)
