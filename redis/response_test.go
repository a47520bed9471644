package redis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmux/redmux/redis"
)

func TestAsError(t *testing.T) {
	assert.Nil(t, redis.AsError(nil))
	assert.Nil(t, redis.AsError("OK"))
	assert.Nil(t, redis.AsError(int64(1)))
	err := redis.ErrResult.New("ERR boom")
	assert.Equal(t, error(err), redis.AsError(err))
}

func TestTransactionResponse(t *testing.T) {
	arr, err := redis.TransactionResponse([]interface{}{"OK", int64(1)})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"OK", int64(1)}, arr)

	// a nil aggregate reply means the transaction was discarded
	_, err = redis.TransactionResponse(nil)
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrTxAborted))

	passthrough := redis.ErrTxAborted.NewWithNoMessage()
	_, err = redis.TransactionResponse(passthrough)
	assert.Equal(t, error(passthrough), err)

	_, err = redis.TransactionResponse("OK")
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrResponseUnexpected))
}

func TestScanResponse(t *testing.T) {
	iter, keys, err := redis.ScanResponse([]interface{}{
		[]byte("42"), []interface{}{[]byte("a"), []byte("b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), iter)
	assert.Equal(t, []string{"a", "b"}, keys)

	scanErr := redis.ErrResult.New("ERR invalid cursor")
	_, _, err = redis.ScanResponse(scanErr)
	assert.Equal(t, error(scanErr), err)

	_, _, err = redis.ScanResponse("OK")
	require.Error(t, err)
	assert.True(t, redis.AsErrorx(err).IsOfType(redis.ErrResponseUnexpected))
}
