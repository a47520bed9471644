package redisconn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joomcode/errorx"

	"github.com/redmux/redmux/redis"
	"github.com/redmux/redmux/resp"
)

// SendTransaction wraps requests into MULTI/EXEC and writes the whole unit
// back-to-back so no foreign command can land between them. cb is resolved
// once, at index start, with the raw EXEC reply: an array of results, nil
// when the transaction was discarded, or an error. QUEUED acks are consumed
// here; when the server rejected a command at queue time, cb receives
// ErrTxAborted wrapping the rejection instead of the bare EXECABORT.
func (conn *Connection) SendTransaction(reqs []redis.Request, cb redis.Future, start uint64) {
	if cb == nil {
		cb = dumb
	}
	if cb.Cancelled() {
		cb.Resolve(redis.ErrRequestCancelled.NewWithNoMessage().
			WithProperty(redis.EKRequests, reqs), start)
		return
	}
	for _, req := range reqs {
		if err := checkCommand(req); err != nil {
			cb.Resolve(redis.ErrBatchFormat.Wrap(err, "transaction command is not allowed").
				WithProperty(redis.EKRequests, reqs).
				WithProperty(redis.EKConnection, conn), start)
			return
		}
	}
	// encode everything up front: a command failing to encode after MULTI
	// already hit the wire would leave the server stuck in a transaction.
	var scratch []byte
	for _, req := range reqs {
		var err error
		if scratch, err = resp.AppendRequest(scratch[:0], req); err != nil {
			cb.Resolve(redis.ErrBatchFormat.Wrap(err, "transaction command is malformed").
				WithProperty(redis.EKRequests, reqs).
				WithProperty(redis.EKConnection, conn), start)
			return
		}
	}

	tx := &txResults{cb: cb, n: start}
	now := time.Now()
	ps := make([]pending, 0, len(reqs)+2)
	ps = append(ps, pending{req: redis.Req("MULTI"), fut: tx.ack(), enq: now})
	for _, req := range reqs {
		ps = append(ps, pending{req: req, fut: tx.ack(), enq: now})
	}
	ps = append(ps, pending{req: redis.Req("EXEC"), fut: tx.fin(), enq: now})

	var err *errorx.Error
	conn.mu.Lock()
	if conn.subs.commandsRestricted() {
		err = redis.ErrSubscriberMode.New("connection is in subscriber mode").
			WithProperty(redis.EKRequests, reqs)
	} else {
		switch State(atomic.LoadUint32(&conn.state)) {
		case StateClosed:
			err = redis.ErrNotConnected.NewWithNoMessage()
			if conn.closeErr != nil {
				err = redis.ErrNotConnected.WrapWithNoMessage(conn.closeErr)
			}
		case StateReady:
			for _, p := range ps {
				if err = conn.cur.push(p); err != nil {
					break
				}
			}
		default:
			if len(conn.offline)+len(ps) > conn.opts.OfflineQueueLimit {
				err = redis.ErrQueueOverflow.New("offline queue limit of %d exceeded", conn.opts.OfflineQueueLimit).
					WithProperty(redis.EKRequests, reqs)
			} else {
				conn.offline = append(conn.offline, ps...)
			}
		}
	}
	conn.mu.Unlock()
	if err != nil {
		cb.Resolve(err.WithProperty(redis.EKConnection, conn), start)
	}
}

// txResults consumes the MULTI and QUEUED acks of one transaction and
// settles the caller with the EXEC reply.
type txResults struct {
	cb redis.Future
	n  uint64

	mu   sync.Mutex
	qerr *errorx.Error
}

func (t *txResults) ack() redis.Future {
	return redis.FuncFuture(func(res interface{}, _ uint64) {
		if err := redis.AsErrorx(res); err != nil {
			t.mu.Lock()
			if t.qerr == nil {
				t.qerr = err
			}
			t.mu.Unlock()
		}
	})
}

func (t *txResults) fin() redis.Future {
	return redis.FuncFuture(func(res interface{}, _ uint64) {
		t.mu.Lock()
		qerr := t.qerr
		t.mu.Unlock()
		if err := redis.AsErrorx(res); err != nil {
			if err.IsOfType(redis.ErrExecAbort) {
				aborted := redis.ErrTxAborted.NewWithNoMessage()
				if qerr != nil {
					aborted = redis.ErrTxAborted.WrapWithNoMessage(qerr)
				}
				t.cb.Resolve(aborted, t.n)
				return
			}
			t.cb.Resolve(err, t.n)
			return
		}
		if res == nil {
			// nil EXEC reply: the server discarded the transaction
			aborted := redis.ErrTxAborted.NewWithNoMessage()
			if qerr != nil {
				aborted = redis.ErrTxAborted.WrapWithNoMessage(qerr)
			}
			t.cb.Resolve(aborted, t.n)
			return
		}
		t.cb.Resolve(res, t.n)
	})
}
