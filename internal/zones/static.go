package zones

import (
	"context"

	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
)

// StaticRepository serves zones listed in config.yaml.
type StaticRepository struct {
	zones []Zone
}

// NewStaticRepository copies the heating.zones entries.
func NewStaticRepository(cfg []config.ZoneConfig) *StaticRepository {
	zs := make([]Zone, 0, len(cfg))
	for _, c := range cfg {
		zs = append(zs, Zone{
			Controls:     c.Controls,
			HeatingRelay: c.HeatingRelay,
			ValveRelay:   c.ValveRelay,
			ValveSwitch:  c.ValveSwitch,
		})
	}
	return &StaticRepository{zones: zs}
}

// ListZones returns the configured zones in file order.
func (r *StaticRepository) ListZones(context.Context) ([]Zone, error) {
	out := make([]Zone, len(r.zones))
	copy(out, r.zones)
	return out, nil
}
