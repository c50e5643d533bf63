// Package heating coordinates heating zones over the message bus.
//
// Each zone has a valve relay (real or purely logical), an optional
// switch that confirms the valve moved, and a heating relay that it may
// share with other zones. The coordinator keeps every heating relay on
// while at least one of its zones demands heat, and off otherwise.
//
// # Message Flow
//
//	named/control/heating/zone/<zone>   "True"/"False"  → ZoneValveRelay.SetState
//	named/sensor/switch/<switch>        "True"/"False"  → ZoneValveRelay.SwitchChanged
//	named/control/occupancy/zone/<zone> occupancy value → ZoneOccupancy.Set
//
// Confirmed zone state is announced on named/sensor/heating/zone/<zone>
// and occupancy on named/sensor/occupancy/zone/<zone>.
//
// # Thread Safety
//
// Coordinator methods are not safe for concurrent use. They run on the
// session loop: as a message handler, from Init during setup, or from
// work posted with Bus.Post (occupancy expiry).
package heating
