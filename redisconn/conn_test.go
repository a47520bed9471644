package redisconn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/redisconn"
	"github.com/redmux/redmux/testbed"
)

type ConnSuite struct {
	suite.Suite
	srv *testbed.Server
}

func TestConnSuite(t *testing.T) {
	suite.Run(t, new(ConnSuite))
}

func (s *ConnSuite) SetupTest() {
	srv, err := testbed.Start()
	s.Require().NoError(err)
	s.srv = srv
}

func (s *ConnSuite) TearDownTest() {
	s.srv.Stop()
}

func (s *ConnSuite) connect(opts redisconn.Opts) *redisconn.Connection {
	conn, err := redisconn.Connect(context.Background(), s.srv.Addr(), opts)
	s.Require().NoError(err)
	return conn
}

// quickRetry keeps reconnection fast enough for tests.
func quickRetry() redisconn.RetryPolicy {
	return redisconn.Backoff(10*time.Millisecond, 20*time.Millisecond, 0)
}

func (s *ConnSuite) waitValue(f *redis.ChanFuture) interface{} {
	select {
	case <-f.Done():
		return f.Value()
	case <-time.After(5 * time.Second):
		s.Require().FailNow("future did not resolve in time")
		return nil
	}
}

// reserveAddr returns a localhost address that is currently closed but was
// just bindable, so a server can be brought up on it later.
func (s *ConnSuite) reserveAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func (s *ConnSuite) TestConnectAndPing() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	s.True(conn.ConnectedNow())
	s.Equal(redisconn.StateReady, conn.State())
	s.NoError(conn.Ping())
	s.Equal(s.srv.Addr(), conn.Addr())
	s.NotEmpty(conn.RemoteAddr())
	s.NotEmpty(conn.LocalAddr())
}

func (s *ConnSuite) TestSetGet() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()
	sync := redis.Sync{S: conn}

	s.Equal("OK", sync.Do("SET", "greeting", "hello"))
	s.Equal([]byte("hello"), sync.Do("GET", "greeting"))
	s.Nil(sync.Do("GET", "missing"))
}

func (s *ConnSuite) TestPipelinedRepliesKeepSendOrder() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	const n = 100
	reqs := make([]redis.Request, n)
	for i := range reqs {
		reqs[i] = redis.Req("INCR", "counter")
	}
	res := redis.Sync{S: conn}.SendMany(reqs)
	s.Require().Len(res, n)
	for i, r := range res {
		s.Equal(int64(i+1), r, "reply %d out of order", i)
	}
}

func (s *ConnSuite) TestOfflineQueueFlushedInOrder() {
	addr := s.reserveAddr()
	conn, err := redisconn.Connect(context.Background(), addr, redisconn.Opts{
		AsyncDial:   true,
		RetryPolicy: quickRetry(),
	})
	s.Require().NoError(err)
	defer conn.Close()
	s.False(conn.ConnectedNow())

	// queued while the address is still dead
	ch := redis.ChanFutured{S: conn}
	var futures []*redis.ChanFuture
	for i := 0; i < 3; i++ {
		futures = append(futures, ch.Send(redis.Req("INCR", "seq")))
	}

	srv, err := testbed.StartAt(addr)
	s.Require().NoError(err)
	defer srv.Stop()

	for i, f := range futures {
		s.Equal(int64(i+1), s.waitValue(f), "offline command %d", i)
	}

	// a command sent after the flush lands strictly behind the queue
	s.Equal(int64(4), s.waitValue(ch.Send(redis.Req("INCR", "seq"))))
}

// cancellableFuture flips Cancelled after cancel and captures the resolution.
type cancellableFuture struct {
	stop chan struct{}
	res  chan interface{}
}

func newCancellableFuture() *cancellableFuture {
	return &cancellableFuture{stop: make(chan struct{}), res: make(chan interface{}, 1)}
}

func (f *cancellableFuture) cancel() { close(f.stop) }

func (f *cancellableFuture) Cancelled() bool {
	select {
	case <-f.stop:
		return true
	default:
		return false
	}
}

func (f *cancellableFuture) Resolve(res interface{}, _ uint64) {
	select {
	case f.res <- res:
	default:
	}
}

func (s *ConnSuite) TestOfflineCommandCancelledBeforeConnect() {
	addr := s.reserveAddr()
	conn, err := redisconn.Connect(context.Background(), addr, redisconn.Opts{
		AsyncDial:   true,
		RetryPolicy: quickRetry(),
	})
	s.Require().NoError(err)
	defer conn.Close()

	// queued while the address is still dead, then abandoned by the caller
	f := newCancellableFuture()
	conn.Send(redis.Req("SET", "ghost", "1"), f, 0)
	f.cancel()

	srv, err := testbed.StartAt(addr)
	s.Require().NoError(err)
	defer srv.Stop()

	var res interface{}
	select {
	case res = <-f.res:
	case <-time.After(5 * time.Second):
		s.Require().FailNow("cancelled offline command was never resolved")
	}
	cerr := redis.AsErrorx(res)
	s.Require().NotNil(cerr)
	s.True(cerr.IsOfType(redis.ErrRequestCancelled))

	// the cancelled command was dropped before send, not replayed
	sync := redis.Sync{S: conn}
	s.Equal(int64(0), sync.Do("EXISTS", "ghost"))
}

func (s *ConnSuite) TestDroppedInFlightCommandFails() {
	conn := s.connect(redisconn.Opts{RetryPolicy: quickRetry()})
	defer conn.Close()
	sync := redis.Sync{S: conn}
	s.Equal("OK", sync.Do("SET", "k", "v"))

	s.srv.Silence(true)
	f := redis.ChanFutured{S: conn}.Send(redis.Req("GET", "k"))
	time.Sleep(100 * time.Millisecond) // let it reach the wire
	s.srv.DropClients()
	s.srv.Silence(false)

	res := s.waitValue(f)
	err := redis.AsErrorx(res)
	s.Require().NotNil(err, "in-flight command must fail, got %v", res)
	s.True(err.IsOfType(redis.ErrConnClosed), "got %v", err)

	// the connection itself recovers
	s.Require().Eventually(conn.ConnectedNow, 5*time.Second, 10*time.Millisecond)
	s.Equal([]byte("v"), sync.Do("GET", "k"))
}

func (s *ConnSuite) TestIdempotentCommandReplayedAfterDrop() {
	conn := s.connect(redisconn.Opts{RetryPolicy: quickRetry()})
	defer conn.Close()
	s.Equal("OK", redis.Sync{S: conn}.Do("SET", "k", "v"))

	s.srv.Silence(true)
	done := make(chan interface{}, 1)
	conn.SendIdempotent(redis.Req("GET", "k"), redis.FuncFuture(func(res interface{}, _ uint64) {
		done <- res
	}), 0)
	time.Sleep(100 * time.Millisecond)
	s.srv.DropClients()
	s.srv.Silence(false)

	select {
	case res := <-done:
		s.Equal([]byte("v"), res)
	case <-time.After(5 * time.Second):
		s.FailNow("idempotent command was not replayed")
	}
}

func (s *ConnSuite) TestRetryGiveUpEndsClosed() {
	addr := s.reserveAddr()
	conn, err := redisconn.Connect(context.Background(), addr, redisconn.Opts{
		AsyncDial:   true,
		RetryPolicy: redisconn.Backoff(5*time.Millisecond, 10*time.Millisecond, 3),
	})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return conn.State() == redisconn.StateClosed
	}, 5*time.Second, 10*time.Millisecond)
	s.False(conn.MayBeConnected())

	res := redis.Sync{S: conn}.Do("PING")
	err2 := redis.AsErrorx(res)
	s.Require().NotNil(err2)
	s.True(err2.IsOfType(redis.ErrNotConnected), "got %v", err2)
}

func (s *ConnSuite) TestSyncConnectFailsWhenPolicyGivesUp() {
	addr := s.reserveAddr()
	_, err := redisconn.Connect(context.Background(), addr, redisconn.Opts{
		RetryPolicy: redisconn.NoReconnect,
	})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrDial), "got %v", err)
	attempt, ok := redis.AsErrorx(err).Property(redis.EKAttempt)
	s.Require().True(ok, "terminal error must carry the attempt count")
	s.Equal(1, attempt)
}

func (s *ConnSuite) TestAuth() {
	s.srv.RequireAuth("sesame")

	_, err := redisconn.Connect(context.Background(), s.srv.Addr(), redisconn.Opts{
		Password: "wrong",
	})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrAuth), "got %v", err)

	conn, err := redisconn.Connect(context.Background(), s.srv.Addr(), redisconn.Opts{
		Password: "sesame",
		DB:       3,
	})
	s.Require().NoError(err)
	defer conn.Close()
	s.NoError(conn.Ping())
}

func (s *ConnSuite) TestAuthFailureIsNeverRetried() {
	s.srv.RequireAuth("sesame")
	start := time.Now()
	_, err := redisconn.Connect(context.Background(), s.srv.Addr(), redisconn.Opts{
		Password:    "wrong",
		RetryPolicy: redisconn.Backoff(time.Hour, time.Hour, 0),
	})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrAuth))
	s.Less(time.Since(start), time.Minute, "rejected credentials must fail without retrying")
}

func (s *ConnSuite) TestOfflineQueueOverflow() {
	addr := s.reserveAddr()
	conn, err := redisconn.Connect(context.Background(), addr, redisconn.Opts{
		AsyncDial:         true,
		OfflineQueueLimit: 2,
		RetryPolicy:       quickRetry(),
	})
	s.Require().NoError(err)
	defer conn.Close()

	ch := redis.ChanFutured{S: conn}
	f1 := ch.Send(redis.Req("PING"))
	f2 := ch.Send(redis.Req("PING"))
	f3 := ch.Send(redis.Req("PING"))

	err3 := redis.AsErrorx(s.waitValue(f3))
	s.Require().NotNil(err3)
	s.True(err3.IsOfType(redis.ErrQueueOverflow), "got %v", err3)

	select {
	case <-f1.Done():
		s.FailNow("queued command resolved while the address is dead")
	case <-f2.Done():
		s.FailNow("queued command resolved while the address is dead")
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *ConnSuite) TestTransaction() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	res, err := redis.Sync{S: conn}.SendTransaction([]redis.Request{
		redis.Req("SET", "tx", "1"),
		redis.Req("INCR", "tx"),
	})
	s.Require().NoError(err)
	s.Equal([]interface{}{"OK", int64(2)}, res)
}

func (s *ConnSuite) TestTransactionAbortedOnQueueError() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()
	sync := redis.Sync{S: conn}
	s.Equal("OK", sync.Do("SET", "safe", "x"))

	_, err := sync.SendTransaction([]redis.Request{
		redis.Req("SET", "victim", "1"),
		redis.Req("BOGUS", "nope"),
	})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrTxAborted), "got %v", err)

	// nothing from the aborted transaction was executed
	s.Nil(sync.Do("GET", "victim"))
	// and the connection keeps working
	s.Equal([]byte("x"), sync.Do("GET", "safe"))
}

func (s *ConnSuite) TestTxHelper() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	res, err := redis.Multi(conn).
		Queue("SET", "h", "40").
		QueueProc(redis.Req("INCR", "h"), func(r interface{}) interface{} {
			return r.(int64) + 1
		}).
		Exec(context.Background())
	s.Require().NoError(err)
	s.Equal([]interface{}{"OK", int64(42)}, res)
}

func (s *ConnSuite) TestBlockingAndDangerousCommandsRejected() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()
	sync := redis.Sync{S: conn}

	for _, req := range []redis.Request{
		redis.Req("BLPOP", "list", 0),
		redis.Req("WATCH", "key"),
		redis.Req("SUBSCRIBE", "chan"),
		redis.Req("PUNSUBSCRIBE", "chan.*"),
	} {
		err := redis.AsErrorx(sync.Send(req))
		s.Require().NotNil(err, "command %s must be rejected", req.Cmd)
		s.True(err.IsOfType(redis.ErrCommandForbidden), "command %s got %v", req.Cmd, err)
	}
}

func (s *ConnSuite) TestSyncCtxCancellation() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := redis.SyncCtx{S: conn}.Do(ctx, "PING")
	err := redis.AsErrorx(res)
	s.Require().NotNil(err)
	s.True(err.IsOfType(redis.ErrRequestCancelled), "got %v", err)
}

func (s *ConnSuite) TestScript() {
	source := "return redis.call('get', KEYS[1])"
	sha := s.srv.DefineScript(source, func(keys, args []string) interface{} {
		return []byte("script:" + keys[0])
	})

	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	script := redis.NewScript("getter", source, 1)
	s.Equal(sha, script.Hash(), "client and server must agree on the content hash")

	// cold cache: hash form misses, source form loads it
	s.Equal([]byte("script:k"), script.Do(context.Background(), conn, "k"))
	// warm cache
	s.Equal([]byte("script:k2"), script.Do(context.Background(), conn, "k2"))

	// a flushed cache is transparently repopulated
	s.srv.FlushScripts()
	s.Equal([]byte("script:k3"), script.Do(context.Background(), conn, "k3"))
}

func (s *ConnSuite) TestScriptInTransaction() {
	source := "return 1"
	s.srv.DefineScript(source, func(keys, args []string) interface{} {
		return int64(1)
	})
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()

	script := redis.NewScript("one", source, 0)
	res, err := redis.Multi(conn).QueueScript(script).Exec(context.Background())
	s.Require().NoError(err)
	s.Equal([]interface{}{int64(1)}, res)
}

func (s *ConnSuite) TestScanner() {
	conn := s.connect(redisconn.Opts{})
	defer conn.Close()
	sync := redis.Sync{S: conn}

	want := map[string]bool{}
	for i := 0; i < 25; i++ {
		key := "scan:" + string(rune('a'+i))
		sync.Do("SET", key, "x")
		want[key] = true
	}
	sync.Do("SET", "other", "x")

	got := map[string]bool{}
	iter := sync.Scanner(redis.ScanOpts{Match: "scan:*", Count: 7})
	for {
		keys, err := iter.Next()
		if err == redis.ScanEOF {
			break
		}
		s.Require().NoError(err)
		for _, k := range keys {
			got[k] = true
		}
	}
	s.Equal(want, got)
}

func (s *ConnSuite) TestCloseFailsEverything() {
	conn := s.connect(redisconn.Opts{})
	conn.Close()

	s.Require().Eventually(func() bool {
		return conn.State() == redisconn.StateClosed
	}, 5*time.Second, 10*time.Millisecond)

	err := redis.AsErrorx(redis.Sync{S: conn}.Do("PING"))
	s.Require().NotNil(err)
	s.True(err.IsOfType(redis.ErrNotConnected), "got %v", err)
}

func (s *ConnSuite) TestConnectValidation() {
	var nilCtx context.Context
	_, err := redisconn.Connect(nilCtx, s.srv.Addr(), redisconn.Opts{})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrContextIsNil))

	_, err = redisconn.Connect(context.Background(), "", redisconn.Opts{})
	s.Require().Error(err)
	s.True(redis.AsErrorx(err).IsOfType(redis.ErrNoAddressProvided))
}
