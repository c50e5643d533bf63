package zones

import "errors"

var (
	// ErrMissingControls is returned when a zone has no controls key.
	ErrMissingControls = errors.New("zones: controls is required")

	// ErrMissingHeatingRelay is returned when a zone has no heating relay.
	ErrMissingHeatingRelay = errors.New("zones: heating relay is required")

	// ErrSwitchWithoutRelay is returned when a zone has a valve switch but
	// no valve relay for it to observe.
	ErrSwitchWithoutRelay = errors.New("zones: valve switch without valve relay")
)
