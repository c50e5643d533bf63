package heating

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
	"github.com/nerrad567/sensor2mqtt/internal/zones"
)

// Bus is the part of the session controller the coordinator uses.
// *session.Controller satisfies it.
type Bus interface {
	PublishBool(topic string, v bool, retain bool)
	PublishString(topic string, s string, retain bool)
	Subscribe(topic string)
	AddHandler(h session.Handler)
	AddCleanupCallback(cb session.Cleaner)

	// Post runs fn on the session loop.
	Post(fn func())
}

// timer is the part of *time.Timer the occupancy expiry needs.
type timer interface {
	Stop() bool
}

// Options holds configuration for creating a Coordinator.
type Options struct {
	// Bus is the session the coordinator publishes and listens on. Required.
	Bus Bus

	// Source supplies the zone definitions. Required. If it implements
	// io.Closer it is closed during cleanup.
	Source zones.Repository

	// Logger is optional structured logger.
	Logger Logger
}

// Coordinator owns every zone's valve and occupancy state and the
// heating demand on each heating relay.
type Coordinator struct {
	bus    Bus
	source zones.Repository
	logger Logger
	topics mqtt.Topics

	zonesByControls map[string]*ZoneValveRelay
	zonesBySwitch   map[string]*ZoneValveRelay
	occupancy       map[string]*ZoneOccupancy

	// demand maps a heating relay topic to the zones wanting heat from it.
	// A key is present once the relay's state has been published.
	demand map[string]map[*ZoneValveRelay]struct{}

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) timer
}

// New creates a coordinator and registers it for cleanup.
// Zones are not loaded until Init.
func New(opts Options) (*Coordinator, error) {
	if opts.Bus == nil {
		return nil, ErrNoBus
	}
	if opts.Source == nil {
		return nil, ErrNoSource
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	c := &Coordinator{
		bus:             opts.Bus,
		source:          opts.Source,
		logger:          logger,
		zonesByControls: make(map[string]*ZoneValveRelay),
		zonesBySwitch:   make(map[string]*ZoneValveRelay),
		occupancy:       make(map[string]*ZoneOccupancy),
		demand:          make(map[string]map[*ZoneValveRelay]struct{}),
		now:             time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
	opts.Bus.AddCleanupCallback(c)
	return c, nil
}

// Init loads the zones and starts listening.
//
// Every valid zone gets a ZoneValveRelay, which publishes its initial
// closed state, and a ZoneOccupancy. A zone that fails validation is
// logged and skipped; the others are still built.
//
// Returns:
//   - error: if the zone source cannot be read
func (c *Coordinator) Init(ctx context.Context) error {
	zs, err := c.source.ListZones(ctx)
	if err != nil {
		return fmt.Errorf("loading heating zones: %w", err)
	}

	for _, z := range zs {
		if err := z.Validate(); err != nil {
			c.logger.Error("skipping heating zone", "zone", z.Controls, "error", err)
			continue
		}
		if _, dup := c.zonesByControls[z.Controls]; dup {
			c.logger.Warn("duplicate heating zone ignored", "zone", z.Controls)
			continue
		}

		c.logger.Info("making heating zone",
			"zone", z.Controls,
			"heating_relay", z.HeatingRelay,
			"valve_relay", z.ValveRelay,
			"valve_switch", z.ValveSwitch,
		)

		zv := newZoneValveRelay(c, z)
		c.zonesByControls[z.Controls] = zv
		if z.HasValveSwitch() {
			c.zonesBySwitch[z.ValveSwitch] = zv
			c.bus.Subscribe(zv.switchTopic)
		}
		zv.SetState(false)

		c.occupancy[z.Controls] = newZoneOccupancy(c, z.Controls)
	}

	c.bus.Subscribe(c.topics.AllHeatingZoneControls())
	c.bus.Subscribe(c.topics.AllOccupancyZoneControls())
	c.bus.AddHandler(c)

	c.logger.Info("heating coordinator ready", "zones", len(c.zonesByControls))
	return nil
}

// Zone returns the valve relay for a zone key, or nil.
func (c *Coordinator) Zone(controls string) *ZoneValveRelay {
	return c.zonesByControls[controls]
}

// Occupancy returns the occupancy for a zone key, or nil.
func (c *Coordinator) Occupancy(controls string) *ZoneOccupancy {
	return c.occupancy[controls]
}

// SetHeatingFor records whether zv wants heat from its heating relay.
//
// The relay is published ON when its demand set becomes non-empty and
// OFF when it becomes empty. The first time a relay is seen its state
// is published once. Nothing else publishes.
func (c *Coordinator) SetHeatingFor(zv *ZoneValveRelay, demand bool) {
	topic := zv.heatingTopic
	users, seen := c.demand[topic]
	if !seen {
		users = make(map[*ZoneValveRelay]struct{})
		c.demand[topic] = users
	}

	before := len(users)
	if demand {
		users[zv] = struct{}{}
	} else {
		delete(users, zv)
	}
	after := len(users)

	c.logger.Debug("heating demand",
		"relay", topic,
		"zone", zv.Controls(),
		"demand", demand,
		"users", after,
	)

	if !seen || (before == 0) != (after == 0) {
		c.bus.PublishBool(topic, after > 0, true)
	}
}

// HeatingDemand returns how many zones want heat from a heating relay topic.
func (c *Coordinator) HeatingDemand(heatingTopic string) int {
	return len(c.demand[heatingTopic])
}

// HandleMessage routes named heating, occupancy and switch messages.
//
// Control messages for unknown zones and messages from switches that no
// zone watches are not claimed. Messages of another kind on a zone topic
// are claimed without changing anything.
func (c *Coordinator) HandleMessage(topic string, payload []byte) bool {
	parts := mqtt.Split(topic)
	if len(parts) < 4 || parts[0] != mqtt.TopicRootNamed {
		return false
	}

	kind, domain := parts[1], parts[2]
	switch {
	case domain == "heating" && parts[3] == "zone" && len(parts) == 5:
		return c.handleZone(kind, parts[4], payload)
	case domain == "occupancy" && parts[3] == "zone" && len(parts) == 5:
		return c.handleOccupancy(kind, parts[4], payload)
	case domain == "switch" && len(parts) == 4:
		return c.handleSwitch(parts[3], payload)
	}
	return false
}

func (c *Coordinator) handleZone(kind, controls string, payload []byte) bool {
	if kind != "control" {
		c.logger.Warn("unhandled heating zone message", "kind", kind, "zone", controls)
		return true
	}

	zv, ok := c.zonesByControls[controls]
	if !ok {
		c.logger.Warn("attempt to control unknown heating zone", "zone", controls)
		return false
	}

	v := session.ParseBool(payload)
	c.logger.Debug("setting heating zone", "zone", controls, "state", v)
	zv.SetState(v)
	return true
}

func (c *Coordinator) handleSwitch(operatedBy string, payload []byte) bool {
	zv, ok := c.zonesBySwitch[operatedBy]
	if !ok {
		return false
	}

	c.logger.Debug("zone switch changed", "switch", operatedBy, "zone", zv.Controls())
	zv.SwitchChanged(session.ParseBool(payload))
	return true
}

func (c *Coordinator) handleOccupancy(kind, controls string, payload []byte) bool {
	if kind != "control" {
		c.logger.Warn("unhandled occupancy message", "kind", kind, "zone", controls)
		return true
	}

	occ, ok := c.occupancy[controls]
	if !ok {
		c.logger.Warn("attempt to set occupancy of unknown zone", "zone", controls)
		return false
	}

	state, until, err := ParseOccupancy(payload)
	if err != nil {
		c.logger.Warn("ignoring occupancy update", "zone", controls, "error", err)
		return true
	}
	occ.Set(state, until)
	return true
}

// Cleanup stops occupancy expiry timers and releases the zone source.
func (c *Coordinator) Cleanup(context.Context) error {
	c.logger.Debug("stopping heating coordinator")
	for _, occ := range c.occupancy {
		occ.stopTimer()
	}

	if closer, ok := c.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("closing zone source: %w", err)
		}
	}
	return nil
}
