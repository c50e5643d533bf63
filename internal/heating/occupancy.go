package heating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Occupancy is whether anyone is in a zone.
type Occupancy string

// Occupancy values. Every zone starts Unknown after a restart.
const (
	OccupancyUnknown Occupancy = "unknown"
	Occupied         Occupancy = "occupied"
	Unoccupied       Occupancy = "unoccupied"
)

// Payload returns the text announced for o: True, False or Unknown.
func (o Occupancy) Payload() string {
	switch o {
	case Occupied:
		return "True"
	case Unoccupied:
		return "False"
	default:
		return "Unknown"
	}
}

func (o Occupancy) valid() bool {
	return o == OccupancyUnknown || o == Occupied || o == Unoccupied
}

// occupancyMessage is the JSON form of an occupancy command.
type occupancyMessage struct {
	State Occupancy  `json:"state"`
	Until *time.Time `json:"until,omitempty"`
}

// ParseOccupancy decodes an occupancy command.
//
// Accepted forms are the plain payloads True, False and Unknown, or JSON
// such as {"state":"occupied","until":"2026-03-01T18:00:00Z"}. A zero
// until means the state holds until changed.
func ParseOccupancy(payload []byte) (Occupancy, time.Time, error) {
	trimmed := bytes.TrimSpace(payload)
	switch string(trimmed) {
	case "True":
		return Occupied, time.Time{}, nil
	case "False":
		return Unoccupied, time.Time{}, nil
	case "Unknown":
		return OccupancyUnknown, time.Time{}, nil
	}

	var msg occupancyMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidOccupancy, payload)
	}
	if !msg.State.valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown state %q", ErrInvalidOccupancy, msg.State)
	}

	var until time.Time
	if msg.Until != nil {
		until = *msg.Until
	}
	return msg.State, until, nil
}

// ZoneOccupancy is a zone's virtual occupancy sensor. It is not persisted.
type ZoneOccupancy struct {
	coord         *Coordinator
	controls      string
	announceTopic string

	state Occupancy
	until time.Time

	timer timer
	// gen invalidates expiry work already posted to the loop.
	gen uint64
}

func newZoneOccupancy(c *Coordinator, controls string) *ZoneOccupancy {
	return &ZoneOccupancy{
		coord:         c,
		controls:      controls,
		announceTopic: c.topics.OccupancyZoneState(controls),
		state:         OccupancyUnknown,
	}
}

// State returns the current occupancy.
func (o *ZoneOccupancy) State() Occupancy {
	return o.state
}

// Until returns when the current state expires, or zero if it does not.
func (o *ZoneOccupancy) Until() time.Time {
	return o.until
}

// Set records a new occupancy, optionally expiring at until.
//
// Any pending expiry is replaced. An until already in the past makes
// the state unknown straight away. The state is announced only when it
// changes; the return value reports whether it did.
func (o *ZoneOccupancy) Set(state Occupancy, until time.Time) bool {
	o.stopTimer()

	now := o.coord.now()
	if !until.IsZero() && !until.After(now) {
		o.coord.logger.Debug("occupancy already expired", "zone", o.controls, "until", until)
		state, until = OccupancyUnknown, time.Time{}
	}
	if state == OccupancyUnknown {
		until = time.Time{}
	}

	o.until = until
	if !until.IsZero() {
		gen := o.gen
		o.timer = o.coord.afterFunc(until.Sub(now), func() {
			o.coord.bus.Post(func() { o.expire(gen) })
		})
	}

	if state == o.state {
		return false
	}
	o.state = state
	o.coord.logger.Debug("zone occupancy changed", "zone", o.controls, "state", state, "until", until)
	o.coord.bus.PublishString(o.announceTopic, state.Payload(), true)
	return true
}

// expire reverts to unknown if the timer that fired is still current.
func (o *ZoneOccupancy) expire(gen uint64) {
	if gen != o.gen {
		return
	}
	o.timer = nil
	o.until = time.Time{}
	if o.state == OccupancyUnknown {
		return
	}
	o.state = OccupancyUnknown
	o.coord.logger.Debug("zone occupancy expired", "zone", o.controls)
	o.coord.bus.PublishString(o.announceTopic, o.state.Payload(), true)
}

func (o *ZoneOccupancy) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}
