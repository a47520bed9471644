package redisconn

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// State is the lifecycle state of a Connection.
type State uint32

const (
	// StateClosed - terminal unless a new Connect is issued.
	StateClosed State = iota
	// StateConnecting - dialing the socket.
	StateConnecting
	// StateAuthenticating - socket open, handshake in progress.
	StateAuthenticating
	// StateReady - commands are written to the wire as they come.
	StateReady
	// StateReconnecting - waiting out the retry pause.
	StateReconnecting
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultIOTimeout         = 1 * time.Second
	defaultOfflineQueueLimit = 10000
)

// Opts are connection options.
type Opts struct {
	// DialTimeout is the timeout for net.Dialer. Default is 5s.
	DialTimeout time.Duration
	// IOTimeout is the timeout for socket writes and handshake reads.
	// Default is 1s, negative disables.
	IOTimeout time.Duration
	// Password for AUTH. Sent before anything else; a rejected credential
	// closes the connection for good, reconnection is never attempted.
	Password string
	// DB - database number to SELECT after the handshake.
	DB int
	// RetryPolicy drives reconnection. Default is DefaultRetryPolicy.
	RetryPolicy RetryPolicy
	// OfflineQueueLimit bounds the number of commands accepted while the
	// connection is not ready. Exceeding commands fail immediately with
	// ErrQueueOverflow. Default is 10000, negative disables the queue.
	OfflineQueueLimit int
	// PingInterval - keepalive PING period. Default is 1s, negative disables.
	PingInterval time.Duration
	// TCPKeepAlive - KeepAlive parameter for net.Dialer.
	TCPKeepAlive time.Duration
	// Handle is returned with Connection.Handle().
	Handle interface{}
	// Logger is the lifecycle event hook.
	Logger Logger
	// AsyncDial - do not wait for the first handshake: commands are queued
	// offline until the connection becomes ready.
	AsyncDial bool
}

// Connection is a single connection to a redis server. All requests are fed
// into the one socket and replies are matched back to callers strictly in
// send order. The socket and both queues are owned exclusively by this
// instance; independent usage requires an entirely separate Connect.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  uint32

	addr string
	opts Opts

	mu       sync.Mutex
	cur      *oneconn
	offline  []pending
	closeErr *errorx.Error

	subs subRegistry
}

// pending is one command together with its settlement target. It lives in
// the offline queue until the connection is ready, then exactly once moves
// to the in-flight queue of the current socket.
type pending struct {
	req redis.Request
	fut redis.Future
	n   uint64
	// enqueued at
	enq time.Time
	// safe to replay after a dropped connection
	idempotent bool
}

// oneconn is the state of one established socket: its write buffer and
// in-flight queue die with it, the Connection itself survives reconnects.
type oneconn struct {
	c   net.Conn
	dc  io.ReadWriter
	dec *resp.Decoder

	// wbuf and inflight are guarded by Connection.mu; appends happen in the
	// same critical section, so queue order is wire order.
	wbuf     []byte
	inflight []pending
	head     int

	dirty   chan struct{}
	control chan struct{}
	err     *errorx.Error
	erronce sync.Once
}

// Connect creates a connection and establishes it. Unless Opts.AsyncDial is
// set, it returns after the first handshake completes (possibly after several
// dial attempts, as granted by the retry policy), or with an error when the
// handshake failed fatally or the policy gave up.
func Connect(ctx context.Context, addr string, opts Opts) (*Connection, error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.NewWithNoMessage()
	}
	if addr == "" {
		return nil, redis.ErrNoAddressProvided.NewWithNoMessage()
	}
	conn := &Connection{
		addr: addr,
		opts: opts,
	}
	conn.ctx, conn.cancel = context.WithCancel(ctx)

	if conn.opts.DialTimeout <= 0 {
		conn.opts.DialTimeout = defaultDialTimeout
	}
	if conn.opts.IOTimeout == 0 {
		conn.opts.IOTimeout = defaultIOTimeout
	} else if conn.opts.IOTimeout < 0 {
		conn.opts.IOTimeout = 0
	}
	if conn.opts.RetryPolicy == nil {
		conn.opts.RetryPolicy = DefaultRetryPolicy
	}
	if conn.opts.OfflineQueueLimit == 0 {
		conn.opts.OfflineQueueLimit = defaultOfflineQueueLimit
	} else if conn.opts.OfflineQueueLimit < 0 {
		conn.opts.OfflineQueueLimit = 0
	}
	if conn.opts.PingInterval == 0 {
		conn.opts.PingInterval = time.Second
	} else if conn.opts.PingInterval < 0 {
		conn.opts.PingInterval = 0
	}
	if conn.opts.Logger == nil {
		conn.opts.Logger = defaultLogger{log: hclog.Default().Named("redmux")}
	}
	conn.subs.init()

	atomic.StoreUint32(&conn.state, uint32(StateConnecting))

	var initial chan error
	if !conn.opts.AsyncDial {
		initial = make(chan error, 1)
	}
	go conn.loop(initial)
	if conn.opts.PingInterval > 0 {
		go conn.pinger()
	}

	if initial != nil {
		if err := <-initial; err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// State returns the current lifecycle state.
func (conn *Connection) State() State {
	return State(atomic.LoadUint32(&conn.state))
}

// ConnectedNow reports whether the connection is certainly ready now.
func (conn *Connection) ConnectedNow() bool {
	return conn.State() == StateReady
}

// MayBeConnected reports whether the connection is ready or still trying.
func (conn *Connection) MayBeConnected() bool {
	s := conn.State()
	return s != StateClosed
}

// Close shuts the connection down for good. Pending commands fail, the
// socket is released, EventEnd is reported.
func (conn *Connection) Close() {
	conn.cancel()
}

// Ctx returns the connection's context, derived from the one given to Connect.
func (conn *Connection) Ctx() context.Context {
	return conn.ctx
}

// Addr is the address the connection was created with.
func (conn *Connection) Addr() string {
	return conn.addr
}

// RemoteAddr is the address of the redis socket.
func (conn *Connection) RemoteAddr() string {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.cur == nil {
		return ""
	}
	return conn.cur.c.RemoteAddr().String()
}

// LocalAddr is the outgoing socket address.
func (conn *Connection) LocalAddr() string {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.cur == nil {
		return ""
	}
	return conn.cur.c.LocalAddr().String()
}

// Handle returns the user handle from Opts.
func (conn *Connection) Handle() interface{} {
	return conn.opts.Handle
}

func (conn *Connection) String() string {
	return fmt.Sprintf("*redisconn.Connection{addr: %s}", conn.addr)
}

// Ping sends a PING and checks the answer.
func (conn *Connection) Ping() error {
	res := redis.Sync{S: conn}.Do("PING")
	if err := redis.AsError(res); err != nil {
		return err
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		return redis.ErrPing.New("ping response mismatch").WithProperty(redis.EKResponse, res)
	}
	return nil
}

var dumb redis.FuncFuture = func(interface{}, uint64) {}

// Send enqueues a single command. If the connection drops while the command
// is in flight, it fails with ErrConnClosed and is never replayed: the
// server may or may not have executed it.
func (conn *Connection) Send(req redis.Request, cb redis.Future, n uint64) {
	conn.send(req, cb, n, false)
}

// SendIdempotent is Send for commands the caller declares safe to execute
// twice: after a dropped connection they are placed back at the front of the
// offline queue, in order, instead of failing.
func (conn *Connection) SendIdempotent(req redis.Request, cb redis.Future, n uint64) {
	conn.send(req, cb, n, true)
}

func (conn *Connection) send(req redis.Request, cb redis.Future, n uint64, idempotent bool) {
	if cb == nil {
		cb = dumb
	}
	if cb.Cancelled() {
		cb.Resolve(redis.ErrRequestCancelled.NewWithNoMessage().
			WithProperty(redis.EKRequest, req), n)
		return
	}
	if err := checkCommand(req); err != nil {
		cb.Resolve(err.WithProperty(redis.EKConnection, conn), n)
		return
	}
	p := pending{req: req, fut: cb, n: n, enq: time.Now(), idempotent: idempotent}
	conn.mu.Lock()
	err := conn.sendLocked(p)
	conn.mu.Unlock()
	if err != nil {
		cb.Resolve(err.WithProperty(redis.EKConnection, conn), n)
	}
}

// SendMany enqueues a batch back-to-back: no command from another caller can
// interleave. cb is resolved once per request with n = start + position.
func (conn *Connection) SendMany(reqs []redis.Request, cb redis.Future, start uint64) {
	if cb == nil {
		cb = dumb
	}
	for i, req := range reqs {
		if err := checkCommand(req); err != nil {
			common := redis.ErrBatchFormat.Wrap(err, "one of batch commands is malformed").
				WithProperty(redis.EKRequests, reqs).
				WithProperty(redis.EKConnection, conn)
			for j := range reqs {
				if j == i {
					cb.Resolve(err, start+uint64(j))
				} else {
					cb.Resolve(common, start+uint64(j))
				}
			}
			return
		}
	}

	now := time.Now()
	fails := make([]int, 0)
	var err *errorx.Error
	conn.mu.Lock()
	for i, req := range reqs {
		e := conn.sendLocked(pending{req: req, fut: cb, n: start + uint64(i), enq: now})
		if e != nil {
			err = e
			fails = append(fails, i)
		}
	}
	conn.mu.Unlock()
	for _, i := range fails {
		cb.Resolve(err.WithProperty(redis.EKConnection, conn), start+uint64(i))
	}
}

// checkCommand rejects commands that cannot go through a shared pipelined
// connection at all.
func checkCommand(req redis.Request) *errorx.Error {
	if redis.Blocking(req.Cmd) {
		return redis.ErrCommandForbidden.New("blocking command would stall the pipeline").
			WithProperty(redis.EKRequest, req)
	}
	if redis.SubscribeFamily(req.Cmd) {
		return redis.ErrCommandForbidden.New("subscriptions go through the Subscribe api").
			WithProperty(redis.EKRequest, req)
	}
	if redis.Dangerous(req.Cmd) {
		return redis.ErrCommandForbidden.New("command is not allowed on a shared connection").
			WithProperty(redis.EKRequest, req)
	}
	return nil
}

// sendLocked routes one command: to the wire when ready, to the bounded
// offline queue otherwise. Caller holds conn.mu.
func (conn *Connection) sendLocked(p pending) *errorx.Error {
	if conn.subs.commandsRestricted() && !redis.SubscriberSafe(p.req.Cmd) {
		return redis.ErrSubscriberMode.New("connection is in subscriber mode").
			WithProperty(redis.EKRequest, p.req)
	}
	switch State(atomic.LoadUint32(&conn.state)) {
	case StateClosed:
		err := redis.ErrNotConnected.NewWithNoMessage()
		if conn.closeErr != nil {
			err = redis.ErrNotConnected.WrapWithNoMessage(conn.closeErr)
		}
		return err
	case StateReady:
		return conn.cur.push(p)
	default:
		if len(conn.offline) >= conn.opts.OfflineQueueLimit {
			return redis.ErrQueueOverflow.New("offline queue limit of %d exceeded", conn.opts.OfflineQueueLimit).
				WithProperty(redis.EKRequest, p.req)
		}
		conn.offline = append(conn.offline, p)
		return nil
	}
}

// Scanner returns an iterator over a SCAN family command.
func (conn *Connection) Scanner(opts redis.ScanOpts) redis.Scanner {
	return &scanner{ScannerBase: redis.ScannerBase{ScanOpts: opts}, c: conn}
}

type scanner struct {
	redis.ScannerBase
	c *Connection
}

func (s *scanner) Next(cb redis.Future) {
	if s.Err != nil {
		cb.Resolve(s.Err, 0)
		return
	}
	if s.IterLast() {
		cb.Resolve(nil, 0)
		return
	}
	s.DoNext(cb, s.c)
}

/********** connection life cycle **************/

func (conn *Connection) report(event EventKind, v ...interface{}) {
	conn.opts.Logger.Report(event, conn, v...)
}

// loop owns the lifecycle: dial, handshake, serve, tear down, retry.
func (conn *Connection) loop(initial chan error) {
	finish := func(err error) {
		if initial != nil {
			initial <- err
			initial = nil
		}
	}

	attempt := 0
	var lastErr *errorx.Error
	for {
		if conn.ctx.Err() != nil {
			conn.shutdown(redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()))
			finish(conn.ctx.Err())
			return
		}

		atomic.StoreUint32(&conn.state, uint32(StateConnecting))
		one, err := conn.dial()
		if err == nil {
			attempt = 0
			fails := conn.activate(one)
			resolveAll(fails)
			finish(nil)
			conn.report(EventReady)

			go conn.writer(one)
			go conn.reader(one)

			select {
			case <-one.control:
				lastErr = one.err
				conn.onDrop(one)
			case <-conn.ctx.Done():
				conn.shutdown(redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()))
				finish(conn.ctx.Err())
				return
			}
		} else {
			lastErr = err
			conn.report(EventError, err)
			if err.HasTrait(redis.ErrTraitFatal) {
				conn.shutdown(err)
				finish(err)
				return
			}
		}

		attempt++
		pause, ok := conn.opts.RetryPolicy(attempt, lastErr)
		if !ok {
			if lastErr != nil {
				lastErr = lastErr.WithProperty(redis.EKAttempt, attempt)
			}
			conn.shutdown(lastErr)
			finish(lastErr)
			return
		}
		atomic.StoreUint32(&conn.state, uint32(StateReconnecting))
		conn.report(EventReconnecting, attempt, pause)
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-conn.ctx.Done():
			t.Stop()
			conn.shutdown(redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()))
			finish(conn.ctx.Err())
			return
		}
	}
}

// dial opens the socket and runs the handshake: AUTH if a password is
// configured, then PING, then SELECT if a db is configured.
func (conn *Connection) dial() (*oneconn, *errorx.Error) {
	network := "tcp"
	address := conn.addr
	if address[0] == '.' || address[0] == '/' {
		network = "unix"
	} else if len(address) > 7 && address[0:7] == "unix://" {
		network = "unix"
		address = address[7:]
	} else if len(address) > 6 && address[0:6] == "tcp://" {
		address = address[6:]
	}
	dialer := net.Dialer{
		Timeout:   conn.opts.DialTimeout,
		KeepAlive: conn.opts.TCPKeepAlive,
	}
	c, err := dialer.DialContext(conn.ctx, network, address)
	if err != nil {
		return nil, redis.ErrDial.WrapWithNoMessage(err).WithProperty(redis.EKAddress, conn.addr)
	}
	conn.report(EventConnect)
	atomic.StoreUint32(&conn.state, uint32(StateAuthenticating))

	one := &oneconn{
		c:       c,
		dc:      newDeadlineIO(c, conn.opts.IOTimeout),
		dec:     resp.NewDecoder(),
		dirty:   make(chan struct{}, 1),
		control: make(chan struct{}),
	}

	var req []byte
	if conn.opts.Password != "" {
		req, _ = resp.AppendRequest(req, redis.Req("AUTH", conn.opts.Password))
	}
	req, _ = resp.AppendRequest(req, redis.Req("PING"))
	if conn.opts.DB != 0 {
		req, _ = resp.AppendRequest(req, redis.Req("SELECT", conn.opts.DB))
	}
	if _, err = one.dc.Write(req); err != nil {
		c.Close()
		return nil, redis.ErrConnSetup.WrapWithNoMessage(err)
	}

	if conn.opts.Password != "" {
		res, rerr := one.handshakeReply()
		if rerr != nil {
			c.Close()
			return nil, rerr
		}
		if err := redis.AsErrorx(res); err != nil {
			c.Close()
			// rejected credential: fatal by fixed policy, never retried
			return nil, redis.ErrAuth.WrapWithNoMessage(err).WithProperty(redis.EKAddress, conn.addr)
		}
	}
	res, rerr := one.handshakeReply()
	if rerr != nil {
		c.Close()
		return nil, rerr
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		c.Close()
		return nil, redis.ErrConnSetup.New("ping response mismatch").WithProperty(redis.EKResponse, res)
	}
	if conn.opts.DB != 0 {
		res, rerr = one.handshakeReply()
		if rerr != nil {
			c.Close()
			return nil, rerr
		}
		if str, ok := res.(string); !ok || str != "OK" {
			c.Close()
			return nil, redis.ErrConnSetup.New("SELECT response mismatch").
				WithProperty(redis.EKDb, conn.opts.DB).WithProperty(redis.EKResponse, res)
		}
	}

	// handshake reads armed deadlines on the raw socket; the reader loop
	// must block indefinitely instead.
	c.SetReadDeadline(time.Time{})
	return one, nil
}

// handshakeReply reads a single reply during the handshake.
func (one *oneconn) handshakeReply() (interface{}, *errorx.Error) {
	buf := make([]byte, 4096)
	for {
		if val, ok := one.dec.Next(); ok {
			if err := redis.AsErrorx(val); err != nil && err.IsOfType(redis.ErrProtocol) {
				return nil, redis.ErrConnSetup.WrapWithNoMessage(err)
			}
			return val, nil
		}
		n, err := one.dc.Read(buf)
		if err != nil {
			return nil, redis.ErrConnSetup.WrapWithNoMessage(err)
		}
		one.dec.Feed(buf[:n])
	}
}

type failedResolve struct {
	p   pending
	err *errorx.Error
}

func resolveAll(fails []failedResolve) {
	for _, f := range fails {
		f.p.fut.Resolve(f.err, f.p.n)
	}
}

// activate installs the fresh socket, restores subscriptions and replays the
// offline queue, all in one critical section so that commands sent after
// Ready cannot overtake the queued ones.
func (conn *Connection) activate(one *oneconn) []failedResolve {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	conn.cur = one
	atomic.StoreUint32(&conn.state, uint32(StateReady))

	conn.subs.replay(conn, one)

	var fails []failedResolve
	for _, p := range conn.offline {
		if p.fut.Cancelled() {
			fails = append(fails, failedResolve{p, redis.ErrRequestCancelled.NewWithNoMessage()})
			continue
		}
		if err := one.push(p); err != nil {
			fails = append(fails, failedResolve{p, err})
		}
	}
	conn.offline = conn.offline[:0]
	return fails
}

// onDrop tears down a broken socket: in-flight commands fail with
// ErrConnClosed, except those explicitly marked idempotent, which move back
// to the front of the offline queue in their original order.
func (conn *Connection) onDrop(one *oneconn) {
	conn.mu.Lock()
	atomic.StoreUint32(&conn.state, uint32(StateReconnecting))
	if conn.cur == one {
		conn.cur = nil
	}
	conn.subs.suspend()

	var fails []failedResolve
	var replay []pending
	for {
		p, ok := one.pop()
		if !ok {
			break
		}
		if p.idempotent {
			replay = append(replay, p)
		} else {
			fails = append(fails, failedResolve{p, redis.ErrConnClosed.WrapWithNoMessage(one.err)})
		}
	}
	conn.offline = append(replay, conn.offline...)
	conn.mu.Unlock()

	one.c.Close()
	conn.report(EventError, one.err)
	resolveAll(fails)
}

// shutdown moves to the terminal Closed state: every queued and in-flight
// command fails, no timer or goroutine stays behind.
func (conn *Connection) shutdown(err *errorx.Error) {
	conn.cancel()
	conn.mu.Lock()
	atomic.StoreUint32(&conn.state, uint32(StateClosed))
	conn.closeErr = err
	one := conn.cur
	conn.cur = nil
	offline := conn.offline
	conn.offline = nil
	conn.subs.close()

	var fails []failedResolve
	if one != nil {
		for {
			p, ok := one.pop()
			if !ok {
				break
			}
			fails = append(fails, failedResolve{p, redis.ErrConnClosed.WrapWithNoMessage(err)})
		}
	}
	for _, p := range offline {
		fails = append(fails, failedResolve{p, redis.ErrNotConnected.WrapWithNoMessage(err)})
	}
	conn.mu.Unlock()

	if one != nil {
		one.c.Close()
	}
	resolveAll(fails)
	conn.report(EventEnd)
}

// pinger keeps the connection checked while it is idle. Suspended in
// subscriber mode: ordinary replies are not expected there.
func (conn *Connection) pinger() {
	t := time.NewTicker(conn.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-conn.ctx.Done():
			return
		case <-t.C:
		}
		if !conn.ConnectedNow() || conn.SubscriberMode() {
			continue
		}
		conn.Ping()
	}
}

/********** wire side **************/

// push encodes the command and appends it to the in-flight queue in the same
// step: queue order is wire order. Caller holds Connection.mu.
func (one *oneconn) push(p pending) *errorx.Error {
	buf, err := resp.AppendRequest(one.wbuf, p.req)
	if err != nil {
		return errorx.Cast(err)
	}
	one.wbuf = buf
	one.inflight = append(one.inflight, p)
	one.kick()
	return nil
}

// pushSilent writes a command that gets no in-flight entry: its reply comes
// back as a push message (subscribe family). Caller holds Connection.mu.
func (one *oneconn) pushSilent(req redis.Request) *errorx.Error {
	buf, err := resp.AppendRequest(one.wbuf, req)
	if err != nil {
		return errorx.Cast(err)
	}
	one.wbuf = buf
	one.kick()
	return nil
}

func (one *oneconn) kick() {
	select {
	case one.dirty <- struct{}{}:
	default:
	}
}

func (one *oneconn) pop() (pending, bool) {
	if one.head >= len(one.inflight) {
		return pending{}, false
	}
	p := one.inflight[one.head]
	one.inflight[one.head] = pending{}
	one.head++
	if one.head == len(one.inflight) {
		one.inflight = one.inflight[:0]
		one.head = 0
	}
	return p, true
}

func (one *oneconn) setErr(err error, conn *Connection) {
	one.erronce.Do(func() {
		e := errorx.Cast(err)
		if e == nil {
			e = redis.ErrIO.WrapWithNoMessage(err)
		}
		one.err = e.WithProperty(redis.EKConnection, conn)
		close(one.control)
	})
}

// writer moves accumulated bytes to the socket. Two buffers rotate: one is
// being filled by senders while the other is on its way out.
func (conn *Connection) writer(one *oneconn) {
	var spare []byte
	for {
		select {
		case <-one.dirty:
		case <-one.control:
			return
		case <-conn.ctx.Done():
			return
		}
		for {
			conn.mu.Lock()
			if len(one.wbuf) == 0 {
				conn.mu.Unlock()
				break
			}
			packet := one.wbuf
			one.wbuf = spare[:0]
			conn.mu.Unlock()

			if _, err := one.dc.Write(packet); err != nil {
				one.setErr(err, conn)
				return
			}
			spare = packet
		}
	}
}

// reader decodes the inbound stream and settles callers in wire order.
func (conn *Connection) reader(one *oneconn) {
	buf := make([]byte, 64*1024)
	for {
		n, err := one.c.Read(buf)
		if n > 0 {
			one.dec.Feed(buf[:n])
			for {
				val, ok := one.dec.Next()
				if !ok {
					break
				}
				if e := redis.AsErrorx(val); e != nil && e.IsOfType(redis.ErrProtocol) {
					one.setErr(e, conn)
					return
				}
				if !conn.dispatch(one, val) {
					return
				}
			}
		}
		if err != nil {
			one.setErr(err, conn)
			return
		}
	}
}

// dispatch routes one decoded value: a push message goes to subscription
// listeners, anything else settles the oldest in-flight command.
func (conn *Connection) dispatch(one *oneconn, val interface{}) bool {
	conn.mu.Lock()
	if conn.subs.wireActive {
		if p, ok := asPushMessage(val); ok {
			listeners := conn.subs.route(p)
			conn.mu.Unlock()
			m := Message{Pattern: p.pattern, Channel: p.channel, Data: p.data}
			for _, l := range listeners {
				l(m)
			}
			return true
		}
	}
	p, ok := one.pop()
	conn.mu.Unlock()
	if !ok {
		one.setErr(redis.ErrProtocol.New("reply without outstanding command").
			WithProperty(redis.EKResponse, val), conn)
		return false
	}
	p.fut.Resolve(val, p.n)
	return true
}
