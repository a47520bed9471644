package resp_test

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

func decodeOne(t *testing.T, in string) interface{} {
	t.Helper()
	d := resp.NewDecoder()
	d.Feed([]byte(in))
	v, ok := d.Next()
	require.True(t, ok, "expected a complete frame in %q", in)
	require.Equal(t, 0, d.Buffered(), "frame %q left bytes behind", in)
	return v
}

func TestDecoder_Values(t *testing.T) {
	assert.Equal(t, "OK", decodeOne(t, "+OK\r\n"))
	assert.Equal(t, "", decodeOne(t, "+\r\n"))
	assert.Equal(t, int64(17), decodeOne(t, ":17\r\n"))
	assert.Equal(t, int64(-42), decodeOne(t, ":-42\r\n"))
	assert.Equal(t, []byte("hello"), decodeOne(t, "$5\r\nhello\r\n"))
	assert.Equal(t, []byte{}, decodeOne(t, "$0\r\n\r\n"))
	assert.Nil(t, decodeOne(t, "$-1\r\n"))
	assert.Nil(t, decodeOne(t, "*-1\r\n"))
	assert.Equal(t, []interface{}{}, decodeOne(t, "*0\r\n"))
	assert.Equal(t,
		[]interface{}{int64(1), []byte("a"), []interface{}{"X", nil}},
		decodeOne(t, "*3\r\n:1\r\n$1\r\na\r\n*2\r\n+X\r\n$-1\r\n"))
}

func TestDecoder_ServerErrors(t *testing.T) {
	cases := []struct {
		in   string
		kind *errorx.Type
	}{
		{"-ERR boom\r\n", redis.ErrResult},
		{"-NOSCRIPT No matching script.\r\n", redis.ErrNoScript},
		{"-LOADING Redis is loading\r\n", redis.ErrLoading},
		{"-EXECABORT Transaction discarded\r\n", redis.ErrExecAbort},
	}
	for _, c := range cases {
		v := decodeOne(t, c.in)
		err := redis.AsErrorx(v)
		require.NotNil(t, err, "expected an error for %q", c.in)
		assert.True(t, err.IsOfType(c.kind), "%q classified as %v", c.in, err)
		assert.True(t, err.IsOfType(redis.ErrResult), "%q must stay a result error", c.in)
	}
}

func TestDecoder_ErrorInsideArray(t *testing.T) {
	// per-command errors are legal array elements
	v := decodeOne(t, "*2\r\n-ERR nope\r\n:1\r\n")
	arr, ok := v.([]interface{})
	require.True(t, ok)
	require.Len(t, arr, 2)
	assert.Error(t, redis.AsErrorx(arr[0]))
	assert.Equal(t, int64(1), arr[1])
}

func TestDecoder_ProtocolErrors(t *testing.T) {
	cases := []string{
		"?huh\r\n",
		":abc\r\n",
		":\r\n",
		"$3\r\nabcd\r\n",
		"\n",
	}
	for _, in := range cases {
		d := resp.NewDecoder()
		d.Feed([]byte(in))
		v, ok := d.Next()
		require.True(t, ok, "input %q", in)
		err := redis.AsErrorx(v)
		require.NotNil(t, err, "input %q", in)
		assert.True(t, err.IsOfType(redis.ErrProtocol), "input %q got %v", in, err)
	}
}

// TestDecoder_LengthHeadersOutOfRange covers length headers no real server
// can produce. They must come back as protocol errors, not drive allocation.
func TestDecoder_LengthHeadersOutOfRange(t *testing.T) {
	cases := []struct {
		in   string
		kind *errorx.Type
	}{
		{"$9223372036854775806\r\n", redis.ErrLengthOutOfRange},
		{"$536870913\r\n", redis.ErrLengthOutOfRange},
		{"*9223372036854775807\r\n", redis.ErrLengthOutOfRange},
		{"*1048577\r\n", redis.ErrLengthOutOfRange},
		{"$99999999999999999999\r\n", redis.ErrIntegerParsing},
		{":99999999999999999999\r\n", redis.ErrIntegerParsing},
	}
	for _, c := range cases {
		d := resp.NewDecoder()
		d.Feed([]byte(c.in))
		v, ok := d.Next()
		require.True(t, ok, "input %q", c.in)
		err := redis.AsErrorx(v)
		require.NotNil(t, err, "input %q", c.in)
		assert.True(t, err.IsOfType(c.kind), "input %q got %v", c.in, err)
		assert.True(t, err.IsOfType(redis.ErrProtocol), "input %q got %v", c.in, err)
	}
}

func TestDecoder_Incomplete(t *testing.T) {
	for _, in := range []string{"", "+OK", ":12", "$5\r\nhel", "*2\r\n:1\r\n"} {
		d := resp.NewDecoder()
		d.Feed([]byte(in))
		_, ok := d.Next()
		assert.False(t, ok, "input %q is not a complete frame", in)
	}
}

// TestDecoder_ChunkInvariance feeds the same stream in every chunking and
// expects the identical value sequence each time.
func TestDecoder_ChunkInvariance(t *testing.T) {
	stream := []byte("+OK\r\n:123\r\n$5\r\nhello\r\n*3\r\n$1\r\na\r\n*2\r\n:1\r\n:2\r\n$-1\r\n-ERR x\r\n")
	want := decodeAll(t, stream, len(stream))
	require.Len(t, want, 5)
	for size := 1; size < len(stream); size++ {
		got := decodeAll(t, stream, size)
		require.Equal(t, len(want), len(got), "chunk size %d", size)
		for i := range want {
			if e := redis.AsError(want[i]); e != nil {
				assert.Equal(t, e.Error(), redis.AsError(got[i]).Error(), "chunk size %d value %d", size, i)
			} else {
				assert.Equal(t, want[i], got[i], "chunk size %d value %d", size, i)
			}
		}
	}
}

func decodeAll(t *testing.T, stream []byte, chunk int) []interface{} {
	t.Helper()
	d := resp.NewDecoder()
	var out []interface{}
	for off := 0; off < len(stream); off += chunk {
		end := off + chunk
		if end > len(stream) {
			end = len(stream)
		}
		d.Feed(stream[off:end])
		for {
			v, ok := d.Next()
			if !ok {
				break
			}
			out = append(out, v)
		}
	}
	return out
}
