package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmux/redmux/redis"
)

func echoSender() *mockSender {
	m := &mockSender{}
	m.onSend = func(r redis.Request) interface{} {
		if len(r.Args) > 0 {
			s, _ := redis.ArgToString(r.Args[0])
			return []byte(s)
		}
		return "PONG"
	}
	return m
}

func TestSync_DoAndSendMany(t *testing.T) {
	sync := redis.Sync{S: echoSender()}
	assert.Equal(t, "PONG", sync.Do("PING"))
	assert.Equal(t, []byte("a"), sync.Do("ECHO", "a"))

	res := sync.SendMany([]redis.Request{
		redis.Req("ECHO", "1"),
		redis.Req("ECHO", "2"),
		redis.Req("ECHO", "3"),
	})
	assert.Equal(t, []interface{}{[]byte("1"), []byte("2"), []byte("3")}, res)
}

func TestSyncCtx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a sender that never answers
	s := redis.SyncCtx{S: senderFunc(func(r redis.Request, cb redis.Future, n uint64) {})}
	res := s.Do(ctx, "PING")
	err := redis.AsErrorx(res)
	require.NotNil(t, err)
	assert.True(t, err.IsOfType(redis.ErrRequestCancelled))
}

func TestSyncCtx_Do(t *testing.T) {
	s := redis.SyncCtx{S: echoSender()}
	assert.Equal(t, "PONG", s.Do(context.Background(), "PING"))
}

func TestChanFutured(t *testing.T) {
	c := redis.ChanFutured{S: echoSender()}
	f := c.Send(redis.Req("ECHO", "hi"))
	assert.Equal(t, []byte("hi"), f.Value())

	fs := c.SendMany([]redis.Request{redis.Req("ECHO", "a"), redis.Req("ECHO", "b")})
	require.Len(t, fs, 2)
	assert.Equal(t, []byte("a"), fs[0].Value())
	assert.Equal(t, []byte("b"), fs[1].Value())
}

// senderFunc adapts a function to the Send method, other Sender methods are
// never called by the tests using it.
type senderFunc func(r redis.Request, cb redis.Future, n uint64)

func (f senderFunc) Send(r redis.Request, cb redis.Future, n uint64) { f(r, cb, n) }
func (f senderFunc) SendMany(r []redis.Request, cb redis.Future, n uint64) {
	for i := range r {
		f(r[i], cb, n+uint64(i))
	}
}
func (f senderFunc) SendTransaction(r []redis.Request, cb redis.Future, n uint64) {}
func (f senderFunc) Scanner(opts redis.ScanOpts) redis.Scanner                    { return nil }
func (f senderFunc) Close()                                                       {}
