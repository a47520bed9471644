package redis

import (
	"strconv"
)

// Request is a complete command: its name plus arguments.
type Request struct {
	Cmd  string
	Args []interface{}
}

// Req - convenient constructor for Request.
func Req(cmd string, args ...interface{}) Request {
	return Request{cmd, args}
}

// Future is the settlement target of a command: the single asynchronous
// primitive of this client. Callback and channel shapes are adapters over it
// (FuncFuture, ChanFutured).
type Future interface {
	// Resolve is called with the command's result: either a plain value or an
	// error. n is the argument the future was registered with (commonly a
	// position within a batch).
	Resolve(res interface{}, n uint64)
	// Cancelled reports whether the caller gave up on this command. A command
	// still in the offline queue is dropped without being sent; a command
	// already written only stops the local wait.
	Cancelled() bool
}

// FuncFuture is the callback adapter over Future.
type FuncFuture func(res interface{}, n uint64)

// Cancelled implements Future.
func (f FuncFuture) Cancelled() bool { return false }

// Resolve implements Future.
func (f FuncFuture) Resolve(res interface{}, n uint64) { f(res, n) }

// ArgToString converts an argument to its bulk-string form.
func ArgToString(arg interface{}) (string, bool) {
	switch v := arg.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case nil:
		return "", true
	default:
		return "", false
	}
}
