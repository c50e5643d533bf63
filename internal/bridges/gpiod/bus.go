package gpiod

import (
	"context"
	"time"

	"github.com/nerrad567/sensor2mqtt/internal/gpio"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// edgePoll bounds each WaitForEdge so watchers notice cancellation.
const edgePoll = 500 * time.Millisecond

// Bus is the part of the session controller the GPIO bridges use.
// *session.Controller satisfies it.
type Bus interface {
	Host() string
	PublishBool(topic string, v bool, retain bool)
	Subscribe(topic string)
	AddHandler(h session.Handler)
	Post(fn func())
	StartTask(name string, fn func(ctx context.Context)) *session.Task
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// watch calls changed with the new level after every edge that moves
// the line, until ctx ends. changed runs on the watcher goroutine.
func watch(ctx context.Context, in gpio.Input, changed func(v bool)) {
	last := in.Value()
	for ctx.Err() == nil {
		if !in.WaitForEdge(edgePoll) {
			continue
		}
		v := in.Value()
		if v == last {
			continue
		}
		last = v
		changed(v)
	}
}
