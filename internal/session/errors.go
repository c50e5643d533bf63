package session

import "errors"

var (
	// ErrStopped is returned by Connect when the stop signal fires or the
	// context ends before a connection is made.
	ErrStopped = errors.New("session: stopped before connecting")

	// ErrNoBus is returned by New when Options.Bus is nil.
	ErrNoBus = errors.New("session: bus client is required")
)
