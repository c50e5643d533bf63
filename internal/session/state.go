package session

// State is the controller's position in its lifecycle.
type State int32

// Lifecycle states, in the order a normal run passes through them.
// Connected and Resubscribing alternate on every reconnect.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateResubscribing
	StateRunning
	StateStopSignalled
	StateCleaningUp
	StateClosed
)

var stateNames = [...]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateResubscribing: "resubscribing",
	StateRunning:       "running",
	StateStopSignalled: "stop_signalled",
	StateCleaningUp:    "cleaning_up",
	StateClosed:        "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
