package heating

import (
	"slices"
	"strings"
	"time"
)

// ZoneStatus is a point-in-time view of one zone.
type ZoneStatus struct {
	Controls     string     `json:"controls"`
	HeatingRelay string     `json:"heating_relay"`
	ValveRelay   string     `json:"valve_relay,omitempty"`
	ValveSwitch  string     `json:"valve_switch,omitempty"`
	Commanded    *bool      `json:"commanded"`
	RelayDemand  int        `json:"relay_demand"`
	Occupancy    Occupancy  `json:"occupancy"`
	Until        *time.Time `json:"occupied_until,omitempty"`
}

// Status returns every zone ordered by key. Call on the session loop.
func (c *Coordinator) Status() []ZoneStatus {
	out := make([]ZoneStatus, 0, len(c.zonesByControls))
	for key, zv := range c.zonesByControls {
		st := ZoneStatus{
			Controls:     key,
			HeatingRelay: zv.zone.HeatingRelay,
			ValveRelay:   zv.zone.ValveRelay,
			ValveSwitch:  zv.zone.ValveSwitch,
			RelayDemand:  c.HeatingDemand(zv.heatingTopic),
			Occupancy:    OccupancyUnknown,
		}
		if state, known := zv.State(); known {
			st.Commanded = &state
		}
		if occ := c.occupancy[key]; occ != nil {
			st.Occupancy = occ.State()
			if until := occ.Until(); !until.IsZero() {
				st.Until = &until
			}
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b ZoneStatus) int {
		return strings.Compare(a.Controls, b.Controls)
	})
	return out
}
