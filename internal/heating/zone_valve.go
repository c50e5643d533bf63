package heating

import (
	"github.com/nerrad567/sensor2mqtt/internal/zones"
)

// ZoneValveRelay drives one zone's valve relay and, through the
// coordinator, the heating relay the zone shares with others.
//
// A zone without a valve relay is purely logical. A zone without a
// switch confirms its own changes at once.
type ZoneValveRelay struct {
	coord *Coordinator
	zone  zones.Zone

	announceTopic string
	heatingTopic  string
	valveTopic    string
	switchTopic   string

	state bool
	known bool
}

// newZoneValveRelay builds the relay for a validated zone.
func newZoneValveRelay(c *Coordinator, z zones.Zone) *ZoneValveRelay {
	zv := &ZoneValveRelay{
		coord:         c,
		zone:          z,
		announceTopic: c.topics.HeatingZoneState(z.Controls),
		heatingTopic:  c.topics.NamedRelayControl(z.HeatingRelay),
	}
	if z.HasValveRelay() {
		zv.valveTopic = c.topics.NamedRelayControl(z.ValveRelay)
	}
	if z.HasValveSwitch() {
		zv.switchTopic = c.topics.NamedSwitchState(z.ValveSwitch)
	}
	return zv
}

// Controls returns the zone key.
func (zv *ZoneValveRelay) Controls() string {
	return zv.zone.Controls
}

// State returns the last commanded state. known is false until the
// first SetState.
func (zv *ZoneValveRelay) State() (state, known bool) {
	return zv.state, zv.known
}

// SetState asks the valve to open (true) or close (false).
//
// Returns false without publishing if v is already the commanded state.
// Otherwise the new state is recorded and sent to the valve relay, if
// there is one. Without a switch the change is confirmed immediately.
func (zv *ZoneValveRelay) SetState(v bool) bool {
	if zv.known && zv.state == v {
		return false
	}
	zv.state = v
	zv.known = true

	if zv.valveTopic != "" {
		zv.coord.bus.PublishBool(zv.valveTopic, v, true)
	}
	if zv.switchTopic == "" {
		zv.SwitchChanged(v)
	}
	return true
}

// SwitchChanged handles the valve reporting its position.
//
// A report that disagrees with the commanded state is logged as
// critical. The observed value is what drives heating demand and the
// announcement either way.
func (zv *ZoneValveRelay) SwitchChanged(observed bool) {
	if !zv.known || observed != zv.state {
		zv.coord.logger.Critical("zone switch disagrees with commanded state",
			"zone", zv.zone.Controls,
			"switch", zv.zone.ValveSwitch,
			"observed", observed,
			"commanded", zv.state,
			"commanded_known", zv.known,
		)
	}

	zv.coord.SetHeatingFor(zv, observed)
	zv.coord.bus.PublishBool(zv.announceTopic, observed, true)
}

func (zv *ZoneValveRelay) String() string {
	return "ZoneValveRelay(" + zv.zone.Controls + ")"
}
