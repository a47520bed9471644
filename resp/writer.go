package resp

import (
	"strconv"

	"github.com/redmux/redmux/redis"
)

// AppendRequest appends the RESP encoding of req to buf: an array header,
// then every argument as a length-prefixed bulk string. On error buf is
// returned unchanged in length, so the caller may keep its previous content.
func AppendRequest(buf []byte, req redis.Request) ([]byte, error) {
	if req.Cmd == "" {
		return buf, redis.ErrArgumentType.New("empty command name").
			WithProperty(redis.EKRequest, req)
	}
	res := appendHead(buf, '*', int64(len(req.Args)+1))
	res = appendBulkString(res, req.Cmd)
	for i, val := range req.Args {
		str, ok := redis.ArgToString(val)
		if !ok {
			return buf, redis.ErrArgumentType.New("command argument type not supported").
				WithProperty(redis.EKRequest, req).
				WithProperty(redis.EKArgPos, i).
				WithProperty(redis.EKVal, val)
		}
		res = appendBulkString(res, str)
	}
	return res, nil
}

// AppendResponse appends the RESP encoding of a reply value: string becomes a
// status line, []byte a bulk string, int64 an integer, error an error line,
// []interface{} an array (recursively), nil a null bulk string.
func AppendResponse(buf []byte, v interface{}) []byte {
	switch r := v.(type) {
	case nil:
		return append(buf, '$', '-', '1', '\r', '\n')
	case string:
		buf = append(buf, '+')
		buf = append(buf, r...)
		return append(buf, '\r', '\n')
	case error:
		buf = append(buf, '-')
		buf = append(buf, r.Error()...)
		return append(buf, '\r', '\n')
	case int64:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, r, 10)
		return append(buf, '\r', '\n')
	case int:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(r), 10)
		return append(buf, '\r', '\n')
	case []byte:
		buf = appendHead(buf, '$', int64(len(r)))
		buf = append(buf, r...)
		return append(buf, '\r', '\n')
	case []interface{}:
		buf = appendHead(buf, '*', int64(len(r)))
		for _, el := range r {
			buf = AppendResponse(buf, el)
		}
		return buf
	default:
		panic("resp: unsupported response value")
	}
}

// NullArray is the RESP encoding of a null (aborted) array reply.
var NullArray = []byte("*-1\r\n")

func appendBulkString(buf []byte, s string) []byte {
	buf = appendHead(buf, '$', int64(len(s)))
	buf = append(buf, s...)
	return append(buf, '\r', '\n')
}

func appendHead(buf []byte, t byte, n int64) []byte {
	buf = append(buf, t)
	buf = strconv.AppendInt(buf, n, 10)
	return append(buf, '\r', '\n')
}
