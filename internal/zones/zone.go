package zones

import (
	"context"
	"fmt"
)

// Zone is one heating zone.
type Zone struct {
	// Controls is the zone key used in topics.
	Controls string

	// HeatingRelay is the controls key of the relay that supplies heat.
	// Several zones may share one.
	HeatingRelay string

	// ValveRelay is the controls key of the zone's valve relay, if any.
	ValveRelay string

	// ValveSwitch is the operatedby key of the switch that confirms the
	// valve position, if any.
	ValveSwitch string
}

// HasValveRelay reports whether the zone drives its own valve.
func (z Zone) HasValveRelay() bool { return z.ValveRelay != "" }

// HasValveSwitch reports whether the valve position is observed.
func (z Zone) HasValveSwitch() bool { return z.ValveSwitch != "" }

// Validate checks the zone for configuration errors.
func (z Zone) Validate() error {
	if z.Controls == "" {
		return ErrMissingControls
	}
	if z.HeatingRelay == "" {
		return fmt.Errorf("zone %q: %w", z.Controls, ErrMissingHeatingRelay)
	}
	if z.HasValveSwitch() && !z.HasValveRelay() {
		return fmt.Errorf("zone %q: %w", z.Controls, ErrSwitchWithoutRelay)
	}
	return nil
}

// Repository supplies zone definitions.
type Repository interface {
	ListZones(ctx context.Context) ([]Zone, error)
}
