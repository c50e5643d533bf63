package onewire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// Payloads for lifecycle and alert topics.
const (
	PayloadNew        = "New"
	PayloadReadFailed = "Failed to read temperature"
	PayloadGone       = "Gone away"
)

// familyDS18B20 is the 1-wire family code prefixing every DS18B20 serial.
const familyDS18B20 = "28"

// ErrBadReading is returned when w1_slave has no valid temperature.
var ErrBadReading = errors.New("onewire: bad reading")

// Bus is the part of the session controller the probes use.
// *session.Controller satisfies it.
type Bus interface {
	PublishFloat(topic string, v float64, retain bool)
	PublishString(topic string, s string, retain bool)
	Post(fn func())
	StartTask(name string, fn func(ctx context.Context)) *session.Task
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// reading is one probe's result from a poll.
type reading struct {
	serial string
	temp   float64
	err    error
}

// Probes polls every DS18B20 on the bus.
type Probes struct {
	bus     Bus
	logger  Logger
	devices fs.FS
	period  time.Duration
	topics  mqtt.Topics

	// pullups keeps the 1-wire data pins claimed.
	pullups []gpio.Input

	// known is only touched on the session loop.
	known map[string]bool
}

// Options holds configuration for creating Probes.
type Options struct {
	Bus    Bus
	Config config.DS18B20Config

	// Driver enables pull-ups on Config.Pins. May be nil if there are none.
	Driver gpio.Driver

	// Devices overrides the sysfs directory. Defaults to Config.DevicesPath.
	Devices fs.FS

	Logger Logger
}

// New enables the configured pull-ups and starts polling.
func New(opts Options) (*Probes, error) {
	p := &Probes{
		bus:     opts.Bus,
		logger:  opts.Logger,
		devices: opts.Devices,
		period:  opts.Config.PeriodDuration(),
		known:   make(map[string]bool),
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.devices == nil {
		p.devices = os.DirFS(opts.Config.DevicesPath)
	}

	if len(opts.Config.Pins) > 0 && opts.Driver == nil {
		return nil, fmt.Errorf("ds18b20 pull-ups on %v need a gpio driver", opts.Config.Pins)
	}
	for _, pin := range opts.Config.Pins {
		p.logger.Debug("setting pull-up", "pin", pin)
		in, err := opts.Driver.Input(pin, gpio.PullUp)
		if err != nil {
			return nil, fmt.Errorf("ds18b20 pull-up on pin %d: %w", pin, err)
		}
		p.pullups = append(p.pullups, in)
	}

	p.bus.StartTask("ds18b20", p.run)
	return p, nil
}

func (p *Probes) run(ctx context.Context) {
	for {
		readings, err := p.readAll(ctx)
		if err != nil {
			p.logger.Warn("scanning 1-wire devices failed", "error", err)
		} else {
			p.bus.Post(func() { p.report(readings) })
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("ds18b20 poller exiting cleanly")
			return
		case <-time.After(p.period):
		}
	}
}

// readAll reads every DS18B20 present. Runs off the loop: w1_slave reads
// block for the probe's conversion time.
func (p *Probes) readAll(ctx context.Context) ([]reading, error) {
	entries, err := fs.ReadDir(p.devices, ".")
	if err != nil {
		return nil, err
	}

	var out []reading
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		serial := e.Name()
		if !strings.HasPrefix(serial, familyDS18B20) {
			continue
		}

		r := reading{serial: serial}
		data, err := fs.ReadFile(p.devices, path.Join(serial, "w1_slave"))
		if err != nil {
			r.err = err
		} else {
			r.temp, r.err = ParseW1Slave(data)
		}
		out = append(out, r)
	}
	return out, nil
}

// report publishes one poll's results and reconciles the known set.
func (p *Probes) report(readings []reading) {
	seen := make(map[string]bool, len(readings))
	for _, r := range readings {
		seen[r.serial] = true
		if !p.known[r.serial] {
			p.logger.Info("new probe seen", "serial", r.serial)
			p.bus.PublishString(p.topics.TemperatureInfo(r.serial), PayloadNew, false)
			p.known[r.serial] = true
		}

		if r.err != nil {
			p.logger.Warn("probe failed to read", "serial", r.serial, "error", r.err)
			p.bus.PublishString(p.topics.TemperatureAlert(r.serial), PayloadReadFailed, false)
			continue
		}
		p.bus.PublishFloat(p.topics.TemperatureReading(r.serial), r.temp, true)
	}

	var gone []string
	for serial := range p.known {
		if !seen[serial] {
			gone = append(gone, serial)
		}
	}
	slices.Sort(gone)
	for _, serial := range gone {
		p.logger.Warn("probe gone away", "serial", serial)
		p.bus.PublishString(p.topics.TemperatureAlert(serial), PayloadGone, false)
		delete(p.known, serial)
	}
}

// ParseW1Slave extracts degrees Celsius from a w1_slave file:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The CRC line must say YES.
func ParseW1Slave(data []byte) (float64, error) {
	text := string(data)
	if !strings.Contains(text, "YES") {
		return 0, fmt.Errorf("%w: crc check failed", ErrBadReading)
	}

	_, raw, found := strings.Cut(text, " t=")
	if !found {
		return 0, fmt.Errorf("%w: no temperature", ErrBadReading)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadReading, err)
	}
	return milli / 1000, nil
}
