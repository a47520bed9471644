package redis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/redmux/redmux/redis"
)

func TestArgToString(t *testing.T) {
	cases := []struct {
		arg  interface{}
		want string
	}{
		{"str", "str"},
		{[]byte("raw"), "raw"},
		{int(-5), "-5"},
		{int8(8), "8"},
		{int16(-300), "-300"},
		{int32(1 << 20), "1048576"},
		{int64(-1 << 40), "-1099511627776"},
		{uint(5), "5"},
		{uint8(200), "200"},
		{uint16(60000), "60000"},
		{uint32(1 << 30), "1073741824"},
		{uint64(1 << 50), "1125899906842624"},
		{float32(0.5), "0.5"},
		{float64(-1.25), "-1.25"},
		{true, "1"},
		{false, "0"},
		{nil, ""},
	}
	for _, c := range cases {
		got, ok := redis.ArgToString(c.arg)
		assert.True(t, ok, "arg %#v", c.arg)
		assert.Equal(t, c.want, got, "arg %#v", c.arg)
	}

	for _, bad := range []interface{}{struct{}{}, map[string]int{}, []string{"x"}} {
		_, ok := redis.ArgToString(bad)
		assert.False(t, ok, "arg %#v must be rejected", bad)
	}
}

func TestReq(t *testing.T) {
	r := redis.Req("SET", "k", 1)
	assert.Equal(t, "SET", r.Cmd)
	assert.Equal(t, []interface{}{"k", 1}, r.Args)
}

func TestCommandClassification(t *testing.T) {
	for _, cmd := range []string{"BLPOP", "brpop", "XREAD", "wait", "SAVE", "BzPopMin"} {
		assert.True(t, redis.Blocking(cmd), "%s is blocking", cmd)
	}
	assert.False(t, redis.Blocking("GET"))

	assert.True(t, redis.Dangerous("WATCH"))
	assert.True(t, redis.Dangerous("subscribe"))
	assert.False(t, redis.Dangerous("MULTI"))

	for _, cmd := range []string{"SUBSCRIBE", "psubscribe", "UNSUBSCRIBE", "PUNSUBSCRIBE"} {
		assert.True(t, redis.SubscribeFamily(cmd), "%s", cmd)
	}
	assert.False(t, redis.SubscribeFamily("PUBLISH"))

	for _, cmd := range []string{"SUBSCRIBE", "ping", "QUIT", "RESET", "punsubscribe"} {
		assert.True(t, redis.SubscriberSafe(cmd), "%s is allowed in subscriber mode", cmd)
	}
	for _, cmd := range []string{"GET", "SET", "PUBLISH", "MULTI"} {
		assert.False(t, redis.SubscriberSafe(cmd), "%s is not allowed in subscriber mode", cmd)
	}
}
