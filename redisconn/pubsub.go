package redisconn

import (
	"strings"

	"github.com/redmux/redmux/redis"
)

// Message is one pub/sub delivery. Pattern is empty when the delivery came
// through a plain channel subscription.
type Message struct {
	Pattern string
	Channel string
	Data    []byte
}

// Listener receives pub/sub deliveries. It is called from the connection's
// read loop: a slow listener stalls the whole pipeline, hand off to a
// channel or goroutine if processing takes time.
type Listener func(m Message)

// Subscribe registers l for the given channels and puts the connection into
// subscriber mode: until the subscription count drops back to zero, only
// subscribe family commands, PING, QUIT and RESET are accepted.
// Subscriptions survive reconnects: they are restored during the handshake
// of every fresh socket.
func (conn *Connection) Subscribe(l Listener, channels ...string) error {
	return conn.subscribe(l, channels, false)
}

// PSubscribe is Subscribe for pattern subscriptions.
func (conn *Connection) PSubscribe(l Listener, patterns ...string) error {
	return conn.subscribe(l, patterns, true)
}

// Unsubscribe drops all listeners of the given channels. With no channels it
// drops every plain channel subscription.
func (conn *Connection) Unsubscribe(channels ...string) error {
	return conn.unsubscribe(channels, false)
}

// PUnsubscribe is Unsubscribe for pattern subscriptions.
func (conn *Connection) PUnsubscribe(patterns ...string) error {
	return conn.unsubscribe(patterns, true)
}

// SubscriberMode reports whether the connection currently restricts commands
// to the subscriber family.
func (conn *Connection) SubscriberMode() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.subs.commandsRestricted()
}

func (conn *Connection) subscribe(l Listener, names []string, pattern bool) error {
	if l == nil {
		return redis.ErrArgumentType.New("listener must not be nil").
			WithProperty(redis.EKConnection, conn)
	}
	if len(names) == 0 {
		return nil
	}
	cmd := "SUBSCRIBE"
	if pattern {
		cmd = "PSUBSCRIBE"
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.State() == StateClosed {
		err := redis.ErrNotConnected.NewWithNoMessage()
		if conn.closeErr != nil {
			err = redis.ErrNotConnected.WrapWithNoMessage(conn.closeErr)
		}
		return err.WithProperty(redis.EKChannel, strings.Join(names, " ")).
			WithProperty(redis.EKConnection, conn)
	}
	m := conn.subs.listeners(pattern)
	for _, name := range names {
		m[name] = append(m[name], l)
	}
	if conn.cur != nil {
		conn.subs.wireActive = true
		if err := conn.cur.pushSilent(subReq(cmd, names)); err != nil {
			return err.WithProperty(redis.EKChannel, strings.Join(names, " ")).
				WithProperty(redis.EKConnection, conn)
		}
	}
	return nil
}

func (conn *Connection) unsubscribe(names []string, pattern bool) error {
	cmd := "UNSUBSCRIBE"
	if pattern {
		cmd = "PUNSUBSCRIBE"
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	m := conn.subs.listeners(pattern)
	if len(names) == 0 {
		for name := range m {
			delete(m, name)
		}
	} else {
		for _, name := range names {
			delete(m, name)
		}
	}
	if conn.cur != nil && conn.subs.wireActive {
		if err := conn.cur.pushSilent(subReq(cmd, names)); err != nil {
			return err.WithProperty(redis.EKChannel, strings.Join(names, " ")).
				WithProperty(redis.EKConnection, conn)
		}
	}
	return nil
}

func subReq(cmd string, names []string) redis.Request {
	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}
	return redis.Req(cmd, args...)
}

// subRegistry tracks subscriptions across sockets. Guarded by Connection.mu.
type subRegistry struct {
	chans    map[string][]Listener
	patterns map[string][]Listener
	// wireActive mirrors the server side view: set when a subscribe command
	// hits the wire, cleared when an unsubscribe ack reports a remaining
	// count of zero. Only while set are inbound arrays probed for the
	// push shape.
	wireActive bool
}

func (s *subRegistry) init() {
	s.chans = make(map[string][]Listener)
	s.patterns = make(map[string][]Listener)
}

func (s *subRegistry) listeners(pattern bool) map[string][]Listener {
	if pattern {
		return s.patterns
	}
	return s.chans
}

func (s *subRegistry) commandsRestricted() bool {
	return len(s.chans) > 0 || len(s.patterns) > 0
}

// replay restores subscriptions on a fresh socket. An encode failure kills
// the socket through setErr rather than leaving subscriptions half restored.
func (s *subRegistry) replay(conn *Connection, one *oneconn) {
	if len(s.chans) > 0 {
		names := make([]string, 0, len(s.chans))
		for name := range s.chans {
			names = append(names, name)
		}
		if err := one.pushSilent(subReq("SUBSCRIBE", names)); err != nil {
			one.setErr(err, conn)
			return
		}
		s.wireActive = true
	}
	if len(s.patterns) > 0 {
		names := make([]string, 0, len(s.patterns))
		for name := range s.patterns {
			names = append(names, name)
		}
		if err := one.pushSilent(subReq("PSUBSCRIBE", names)); err != nil {
			one.setErr(err, conn)
			return
		}
		s.wireActive = true
	}
}

// suspend forgets the wire state of a dead socket. Listeners stay registered
// and are replayed onto the next socket.
func (s *subRegistry) suspend() {
	s.wireActive = false
}

func (s *subRegistry) close() {
	s.chans = nil
	s.patterns = nil
	s.wireActive = false
}

// route picks the listeners for one push message and folds acks into the
// wire state. Called under Connection.mu.
func (s *subRegistry) route(p push) []Listener {
	switch p.kind {
	case "message":
		return s.chans[p.channel]
	case "pmessage":
		return s.patterns[p.pattern]
	default:
		// subscribe/unsubscribe acks carry the remaining subscription count
		if p.count == 0 {
			s.wireActive = false
		}
		return nil
	}
}

type push struct {
	kind    string
	pattern string
	channel string
	data    []byte
	count   int64
}

// asPushMessage probes a decoded array for the pub/sub push shape. Arrays
// that do not match are ordinary replies and stay in the request/reply flow.
func asPushMessage(val interface{}) (push, bool) {
	arr, ok := val.([]interface{})
	if !ok || len(arr) < 3 {
		return push{}, false
	}
	kind, ok := pushString(arr[0])
	if !ok {
		return push{}, false
	}
	switch kind {
	case "message":
		if len(arr) != 3 {
			return push{}, false
		}
		channel, okc := pushString(arr[1])
		data, okd := arr[2].([]byte)
		if !okc || !okd {
			return push{}, false
		}
		return push{kind: kind, channel: channel, data: data}, true
	case "pmessage":
		if len(arr) != 4 {
			return push{}, false
		}
		pattern, okp := pushString(arr[1])
		channel, okc := pushString(arr[2])
		data, okd := arr[3].([]byte)
		if !okp || !okc || !okd {
			return push{}, false
		}
		return push{kind: kind, pattern: pattern, channel: channel, data: data}, true
	case "subscribe", "unsubscribe", "psubscribe", "punsubscribe":
		if len(arr) != 3 {
			return push{}, false
		}
		// the channel slot is nil when an unsubscribe found nothing to drop
		channel, okc := pushString(arr[1])
		if arr[1] == nil {
			channel, okc = "", true
		}
		count, okn := arr[2].(int64)
		if !okc || !okn {
			return push{}, false
		}
		return push{kind: kind, channel: channel, count: count}, true
	default:
		return push{}, false
	}
}

func pushString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
