package resp

import (
	"bytes"
	"math"
	"strings"

	"github.com/redmux/redmux/redis"
)

// maxHeaderLine bounds the length of a single reply header line.
const maxHeaderLine = 128 * 1024

// Length headers are checked against the server's own limits
// (proto-max-bulk-len and the multibulk element cap): anything above them
// cannot come from a healthy server, and trusting it would let one line of
// remote input drive allocation and slice arithmetic.
const (
	maxBulkLen  = 512 << 20
	maxArrayLen = 1024 * 1024
)

// Decoder turns a byte stream, fed in arbitrary chunks, into a sequence of
// fully decoded reply values. Decoding is a pure function of the bytes
// accumulated so far: Next consumes complete frames and leaves any partial
// frame buffered, so the same stream yields the same values no matter how it
// was chunked.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes from the socket.
func (d *Decoder) Feed(p []byte) {
	if d.pos == len(d.buf) {
		d.buf = d.buf[:0]
		d.pos = 0
	} else if d.pos > 4096 && d.pos*2 > len(d.buf) {
		d.buf = append(d.buf[:0], d.buf[d.pos:]...)
		d.pos = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.pos
}

// Next returns the next decoded reply value. ok is false when the buffered
// bytes do not contain a complete frame yet; feed more and call again.
// Malformed input is returned as a value of kind redis.ErrProtocol — the
// connection owner treats those as fatal, while redis.ErrResult values are
// ordinary per-command errors.
func (d *Decoder) Next() (res interface{}, ok bool) {
	val, n, ok := parse(d.buf[d.pos:])
	if !ok {
		return nil, false
	}
	d.pos += n
	return val, true
}

// parse decodes a single value from the head of buf. ok=false means more
// bytes are needed. n is the number of bytes the value occupies.
func parse(buf []byte) (val interface{}, n int, ok bool) {
	line, n, ok := parseLine(buf)
	if !ok {
		return nil, 0, false
	}
	if err, fatal := line.(error); fatal {
		return err, n, true
	}
	hdr := line.([]byte)
	if len(hdr) == 0 {
		return redis.ErrHeaderlineEmpty.NewWithNoMessage(), n, true
	}

	switch hdr[0] {
	case '+':
		return string(hdr[1:]), n, true
	case '-':
		return serverError(string(hdr[1:])), n, true
	case ':':
		v, err := parseInt(hdr[1:])
		if err != nil {
			return err, n, true
		}
		return v, n, true
	case '$':
		v, err := parseInt(hdr[1:])
		if err != nil {
			return err, n, true
		}
		if v < 0 {
			return nil, n, true
		}
		if v > maxBulkLen {
			return redis.ErrLengthOutOfRange.New("bulk length %d", v), n, true
		}
		if int64(len(buf)-n) < v+2 {
			return nil, 0, false
		}
		body := buf[n : n+int(v)]
		if buf[n+int(v)] != '\r' || buf[n+int(v)+1] != '\n' {
			return redis.ErrNoFinalRN.NewWithNoMessage(), n, true
		}
		res := make([]byte, v)
		copy(res, body)
		return res, n + int(v) + 2, true
	case '*':
		v, err := parseInt(hdr[1:])
		if err != nil {
			return err, n, true
		}
		if v < 0 {
			return nil, n, true
		}
		if v > maxArrayLen {
			return redis.ErrLengthOutOfRange.New("array length %d", v), n, true
		}
		result := make([]interface{}, v)
		for i := int64(0); i < v; i++ {
			el, en, eok := parse(buf[n:])
			if !eok {
				return nil, 0, false
			}
			if e := redis.AsErrorx(el); e != nil && !e.IsOfType(redis.ErrResult) {
				return e, n + en, true
			}
			result[i] = el
			n += en
		}
		return result, n, true
	default:
		return redis.ErrUnknownHeaderType.NewWithNoMessage(), n, true
	}
}

// parseLine extracts one header line. The returned value is either the line
// without its terminator ([]byte) or a protocol error.
func parseLine(buf []byte) (interface{}, int, bool) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) > maxHeaderLine {
			return redis.ErrHeaderlineTooLarge.NewWithNoMessage(), len(buf), true
		}
		return nil, 0, false
	}
	if idx == 0 || buf[idx-1] != '\r' {
		return redis.ErrHeaderlineEmpty.NewWithNoMessage(), idx + 1, true
	}
	return buf[:idx-1], idx + 1, true
}

// serverError classifies a well-formed error reply by its prefix, the same
// way special server answers are recognized on read.
func serverError(txt string) error {
	switch {
	case strings.HasPrefix(txt, "NOSCRIPT"):
		return redis.ErrNoScript.New(txt)
	case strings.HasPrefix(txt, "LOADING"):
		return redis.ErrLoading.New(txt)
	case strings.HasPrefix(txt, "EXECABORT"):
		return redis.ErrExecAbort.New(txt)
	default:
		return redis.ErrResult.New(txt)
	}
}

func parseInt(buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, redis.ErrIntegerParsing.NewWithNoMessage()
	}
	neg := buf[0] == '-'
	if neg {
		buf = buf[1:]
		if len(buf) == 0 {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage()
		}
	}
	v := int64(0)
	for _, b := range buf {
		if b < '0' || b > '9' {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage()
		}
		if v > (math.MaxInt64-9)/10 {
			return 0, redis.ErrIntegerParsing.NewWithNoMessage()
		}
		v *= 10
		v += int64(b - '0')
	}
	if neg {
		v = -v
	}
	return v, nil
}
