package redisconn

import (
	"github.com/hashicorp/go-hclog"
)

// EventKind is a connection lifecycle event, reported through the Logger hook.
type EventKind int

const (
	// EventConnect - socket established, handshake starting.
	EventConnect EventKind = iota
	// EventReady - handshake finished, pipeline accepts and writes commands.
	EventReady
	// EventReconnecting - connection lost or dial failed, next attempt is
	// scheduled. v = attempt number, delay before it.
	EventReconnecting
	// EventError - connection level error. v[0] is the error. Per-command
	// errors are never reported here, they go to the issuing caller only.
	// A layer attaching a Logger must treat an unhandled EventError as fatal.
	EventError
	// EventEnd - terminal close, the connection will not be used again.
	EventEnd
	eventMAX
)

// Logger is a hook for lifecycle events.
type Logger interface {
	Report(event EventKind, conn *Connection, v ...interface{})
}

type defaultLogger struct {
	log hclog.Logger
}

// NewHclogLogger wraps an hclog logger into the event hook.
func NewHclogLogger(log hclog.Logger) Logger {
	return defaultLogger{log: log}
}

func (d defaultLogger) Report(event EventKind, conn *Connection, v ...interface{}) {
	switch event {
	case EventConnect:
		d.log.Debug("connected", "addr", conn.Addr())
	case EventReady:
		d.log.Info("ready", "addr", conn.Addr(), "local", conn.LocalAddr(), "remote", conn.RemoteAddr())
	case EventReconnecting:
		d.log.Warn("reconnecting", "addr", conn.Addr(), "attempt", v[0], "delay", v[1])
	case EventError:
		d.log.Error("connection error", "addr", conn.Addr(), "error", v[0])
	case EventEnd:
		d.log.Info("closed", "addr", conn.Addr())
	default:
		d.log.Error("unexpected event", "event", int(event), "addr", conn.Addr(), "args", v)
	}
}
