// Package onewire polls DS18B20 temperature probes on the kernel 1-wire bus.
//
// Every poll reads /sys/bus/w1/devices/28-*/w1_slave. A probe seen for
// the first time is announced on info/w1/temperature/<serial>; each good
// reading goes to sensor/w1/temperature/<serial> (retained); failures
// and probes that disappear are reported on alert/w1/temperature/<serial>.
package onewire
