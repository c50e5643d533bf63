package lux

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/session/sessiontest"
)

// fakeDevice answers word reads from regs and records every transfer.
type fakeDevice struct {
	regs   map[byte]uint16
	writes [][]byte
	txErr  error
	closed bool
}

func (d *fakeDevice) Tx(w, r []byte) error {
	if d.txErr != nil {
		return d.txErr
	}
	d.writes = append(d.writes, slices.Clone(w))
	if len(r) == 2 {
		v := d.regs[w[0]&^regCommand]
		r[0], r[1] = byte(v), byte(v>>8)
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func newTestSensor(dev *fakeDevice) *Sensor {
	s := NewSensor(dev)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestLux(t *testing.T) {
	tests := []struct {
		name     string
		full, ir float64
		want     float64
	}{
		{"dark", 0, 0, 0},
		{"no infrared", 1000, 0, 30.4},
		{"low ratio", 1000, 500, 30.4 - 0.062*500*math.Pow(0.5, 1.4)},
		{"second band", 1000, 550, 22.4 - 17.05},
		{"third band", 1000, 700, 12.8 - 10.71},
		{"fourth band", 1000, 1000, 1.46 - 1.12},
		{"mostly infrared", 1000, 1400, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lux(tt.full, tt.ir); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Lux(%v, %v) = %v, want %v", tt.full, tt.ir, got, tt.want)
			}
		})
	}
}

func TestSensor_Read(t *testing.T) {
	dev := &fakeDevice{regs: map[byte]uint16{regChan0: 0x0100, regChan1: 0x0020}}
	s := newTestSensor(dev)

	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if want := Lux(1024, 128); got != want {
		t.Errorf("Read() = %v, want %v", got, want)
	}

	wantWrites := [][]byte{
		{0x81, 0x11},
		{0x80, 0x03},
		{0x8C},
		{0x8E},
		{0x80, 0x00},
	}
	if !slices.EqualFunc(dev.writes, wantWrites, slices.Equal) {
		t.Errorf("writes = %x, want %x", dev.writes, wantWrites)
	}
}

func TestSensor_ReadSaturated(t *testing.T) {
	dev := &fakeDevice{regs: map[byte]uint16{regChan0: 0xFFFF, regChan1: 0x0100}}
	s := newTestSensor(dev)

	if _, err := s.Read(context.Background()); !errors.Is(err, ErrSaturated) {
		t.Errorf("Read() error = %v, want ErrSaturated", err)
	}
	if last := dev.writes[len(dev.writes)-1]; !slices.Equal(last, []byte{0x80, 0x00}) {
		t.Errorf("last write = %x, want power off", last)
	}
}

func TestSensor_ReadBusError(t *testing.T) {
	dev := &fakeDevice{txErr: errors.New("nack")}
	s := newTestSensor(dev)

	if _, err := s.Read(context.Background()); err == nil {
		t.Error("Read() expected error")
	}
}

func TestSensor_ReadCancelled(t *testing.T) {
	dev := &fakeDevice{regs: map[byte]uint16{}}
	s := NewSensor(dev)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

type fakeReader struct {
	mu     sync.Mutex
	values []float64
	errs   []error
	closed bool
}

func (r *fakeReader) Read(context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v float64
	var err error
	if len(r.values) > 0 {
		v, r.values = r.values[0], r.values[1:]
	}
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	return v, err
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestPoll_PublishesWholeLux(t *testing.T) {
	h := sessiontest.New(t, "pi")
	r := &fakeReader{values: []float64{0, 123.7}, errs: []error{ErrSaturated, nil}}
	const topic = "sensor/i2c/lux/pi/1/41"

	h.Do(func() { poll(h, r, topic, time.Millisecond, nil) })
	h.WaitFor(topic, "123")

	m, _ := h.Client.Last(topic)
	if !m.Retained {
		t.Errorf("lux publish = %+v, want retained", m)
	}
	if got := h.Client.PublishedTo(topic); got[0] != "123" {
		t.Errorf("first publish = %q, saturated read should publish nothing", got[0])
	}

	h.Stop()
	if !r.isClosed() {
		t.Error("device not closed on shutdown")
	}
}
