package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/sensor2mqtt/internal/api"
	"github.com/nerrad567/sensor2mqtt/internal/bridges/gpiod"
	"github.com/nerrad567/sensor2mqtt/internal/bridges/lux"
	"github.com/nerrad567/sensor2mqtt/internal/bridges/onewire"
	"github.com/nerrad567/sensor2mqtt/internal/bridges/pond"
	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/heating"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/sensor2mqtt/internal/session"
	"github.com/nerrad567/sensor2mqtt/internal/telemetry"
	"github.com/nerrad567/sensor2mqtt/internal/zones"
	"github.com/nerrad567/sensor2mqtt/migrations"
)

// bridge builds every configured subsystem on the session.
type bridge struct {
	cfg  *config.Config
	log  *logging.Logger
	ctrl *session.Controller

	// newDriver opens the GPIO host. Replaced in tests.
	newDriver func() (gpio.Driver, error)
	driver    gpio.Driver

	coordinator *heating.Coordinator
}

// setup runs on the loop once the broker is connected. A subsystem that
// fails to start is logged and skipped; the rest still come up.
func (b *bridge) setup(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"heating", b.setupHeating},
		{"gpio", b.setupGPIO},
		{"ds18b20", b.setupOneWire},
		{"pond skimmer", b.setupPond},
		{"tsl2561", b.setupLux},
		{"telemetry", b.setupTelemetry},
		{"api", b.setupAPI},
	}

	var failed int
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			failed++
			b.log.Error("subsystem failed to start", "subsystem", step.name, "error", err)
		}
	}

	b.log.Info("sensor2mqtt started",
		"host", b.ctrl.Host(),
		"subscriptions", len(b.ctrl.Subscriptions()),
		"failed", failed,
	)
	return nil
}

func (b *bridge) setupHeating(ctx context.Context) error {
	if !b.cfg.Heating.Enabled {
		return nil
	}

	var source zones.Repository
	switch b.cfg.Heating.ZoneSource {
	case config.ZoneSourceConfig:
		source = zones.NewStaticRepository(b.cfg.Heating.Zones)
	default:
		db, err := database.Open(ctx, b.cfg.Database)
		if err != nil {
			return err
		}
		b.ctrl.AddCleanupCallback(session.CleanupFunc(func(context.Context) error {
			return db.Close()
		}))
		if err := db.Migrate(ctx, database.Source{FS: migrations.FS, Dir: "."}); err != nil {
			return fmt.Errorf("migrating zone database: %w", err)
		}
		b.log.Info("zone database ready", "path", db.Path())
		source = zones.NewSQLiteRepository(db.DB)
	}

	coord, err := heating.New(heating.Options{
		Bus:    b.ctrl,
		Source: source,
		Logger: b.log.With("component", "heating"),
	})
	if err != nil {
		return err
	}
	if err := coord.Init(ctx); err != nil {
		return err
	}
	b.coordinator = coord
	return nil
}

// gpioDriver opens the host on first use so a bridge with no pins
// configured never touches /dev/gpiomem.
func (b *bridge) gpioDriver() (gpio.Driver, error) {
	if b.driver != nil {
		return b.driver, nil
	}
	open := b.newDriver
	if open == nil {
		open = func() (gpio.Driver, error) { return gpio.NewPeriph() }
	}
	d, err := open()
	if err != nil {
		return nil, err
	}
	b.driver = d
	return d, nil
}

func (b *bridge) setupGPIO(context.Context) error {
	s := b.cfg.Sensors
	if len(s.Relays.Pins)+len(s.Relays.InvertedPins)+len(s.Switches.Pins)+len(s.PIR.Pins) == 0 {
		return nil
	}
	driver, err := b.gpioDriver()
	if err != nil {
		return err
	}
	log := b.log.With("component", "gpiod")

	var errs []error
	if len(s.Relays.Pins)+len(s.Relays.InvertedPins) > 0 {
		if _, err := gpiod.NewRelays(b.ctrl, driver, s.Relays, log); err != nil {
			errs = append(errs, err)
		}
	}
	if len(s.Switches.Pins) > 0 {
		if err := gpiod.NewSwitches(b.ctrl, driver, s.Switches, log); err != nil {
			errs = append(errs, err)
		}
	}
	if len(s.PIR.Pins) > 0 {
		if err := gpiod.NewPIRs(b.ctrl, driver, s.PIR, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *bridge) setupOneWire(context.Context) error {
	cfg := b.cfg.Sensors.DS18B20
	if !cfg.Enabled {
		return nil
	}
	opts := onewire.Options{
		Bus:    b.ctrl,
		Config: cfg,
		Logger: b.log.With("component", "ds18b20"),
	}
	if len(cfg.Pins) > 0 {
		driver, err := b.gpioDriver()
		if err != nil {
			return err
		}
		opts.Driver = driver
	}
	_, err := onewire.New(opts)
	return err
}

func (b *bridge) setupPond(context.Context) error {
	cfg := b.cfg.Sensors.PondSkimmer
	if cfg.Relay == "" {
		return nil
	}
	pond.New(b.ctrl, cfg, b.log.With("component", "pond"))
	return nil
}

func (b *bridge) setupLux(context.Context) error {
	cfg := b.cfg.Sensors.TSL2561
	if !cfg.Enabled {
		return nil
	}
	driver, err := b.gpioDriver()
	if err != nil {
		return err
	}
	return lux.Start(b.ctrl, driver, cfg, b.log.With("component", "tsl2561"))
}

func (b *bridge) setupTelemetry(ctx context.Context) error {
	if !b.cfg.InfluxDB.Enabled {
		return nil
	}
	client, err := influxdb.Connect(ctx, b.cfg.InfluxDB)
	if err != nil {
		return err
	}
	client.SetOnError(func(err error) {
		b.log.Warn("influxdb write failed", "error", err)
	})
	telemetry.Start(b.ctrl, client, b.log.With("component", "telemetry"))
	b.log.Info("recording to influxdb", "url", b.cfg.InfluxDB.URL, "bucket", b.cfg.InfluxDB.Bucket)
	return nil
}

func (b *bridge) setupAPI(ctx context.Context) error {
	if !b.cfg.API.Enabled {
		return nil
	}
	deps := api.Deps{
		Config:  b.cfg.API,
		WS:      b.cfg.WebSocket,
		Logger:  b.log.With("component", "api"),
		Loop:    b.ctrl,
		Version: version,
	}
	if b.coordinator != nil {
		deps.Zones = b.coordinator
	}
	srv, err := api.New(deps)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	b.ctrl.AddHandler(srv.Hub())
	b.ctrl.AddCleanupCallback(srv)
	return nil
}
