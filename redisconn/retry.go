package redisconn

import (
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// RetryPolicy decides how reconnection proceeds: given the attempt number
// (1-based, reset after every successful handshake) and the error that ended
// the previous attempt, it returns the pause before the next attempt, or
// ok=false to give up and close the connection for good.
//
// A policy must be a pure function: identical inputs yield identical outputs.
type RetryPolicy func(attempt int, lastErr error) (pause time.Duration, ok bool)

// NoReconnect gives up immediately: a lost connection stays lost.
func NoReconnect(int, error) (time.Duration, bool) {
	return 0, false
}

// Backoff returns an exponential backoff policy: pause grows from base,
// doubling each attempt, capped at max. maxAttempts > 0 bounds the number of
// attempts; 0 retries forever. Jitter is derived by hashing the inputs, so
// the policy stays deterministic.
func Backoff(base, max time.Duration, maxAttempts int) RetryPolicy {
	if base <= 0 {
		base = defaultRetryBase
	}
	if max < base {
		max = base
	}
	return func(attempt int, lastErr error) (time.Duration, bool) {
		if attempt < 1 || (maxAttempts > 0 && attempt >= maxAttempts) {
			return 0, false
		}
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		var msg string
		if lastErr != nil {
			msg = lastErr.Error()
		}
		h := xxh3.HashString(strconv.Itoa(attempt) + "\x00" + msg)
		jitter := time.Duration(h % uint64(d/2+1))
		return d/2 + jitter, true
	}
}

const (
	defaultRetryBase = 100 * time.Millisecond
	defaultRetryMax  = 10 * time.Second
)

// DefaultRetryPolicy is unbounded exponential backoff between 100ms and 10s.
var DefaultRetryPolicy = Backoff(defaultRetryBase, defaultRetryMax, 0)
