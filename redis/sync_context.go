package redis

import (
	"context"
	"sync/atomic"
)

// SyncCtx provides the same synchronous api as Sync, but every method accepts
// a context and returns as soon as that context closes. Note that a command
// which was already written cannot be recalled: cancellation only abandons
// the local wait, the server may still execute it.
type SyncCtx struct {
	S Sender
}

// Do is a convenient version of Send.
func (s SyncCtx) Do(ctx context.Context, cmd string, args ...interface{}) interface{} {
	return s.Send(ctx, Request{cmd, args})
}

// Send sends a request and waits for its reply or context closure.
func (s SyncCtx) Send(ctx context.Context, r Request) interface{} {
	res := ctxRes{active: newActive(ctx)}

	s.S.Send(r, &res, 0)

	select {
	case <-ctx.Done():
		return ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-res.ch:
		return res.r
	}
}

// SendMany sends several requests pipelined and waits for all replies or
// context closure.
func (s SyncCtx) SendMany(ctx context.Context, reqs []Request) []interface{} {
	res := ctxBatch{
		active: newActive(ctx),
		r:      make([]interface{}, len(reqs)),
		o:      make([]uint32, len(reqs)),
	}

	s.S.SendMany(reqs, &res, 0)

	select {
	case <-ctx.Done():
		err := ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
		for i := range res.o {
			res.Resolve(err, uint64(i))
		}
		<-res.ch
	case <-res.ch:
	}
	return res.r
}

// SendTransaction wraps requests into MULTI/EXEC and waits for the result or
// context closure.
func (s SyncCtx) SendTransaction(ctx context.Context, reqs []Request) ([]interface{}, error) {
	res := ctxRes{active: newActive(ctx)}

	s.S.SendTransaction(reqs, &res, 0)

	var r interface{}
	select {
	case <-ctx.Done():
		r = ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-res.ch:
		r = res.r
	}

	return TransactionResponse(r)
}

// Scanner returns a synchronous iterator over a SCAN family command.
func (s SyncCtx) Scanner(ctx context.Context, opts ScanOpts) SyncCtxIterator {
	return SyncCtxIterator{ctx, s.S.Scanner(opts)}
}

type active struct {
	ctx context.Context
	ch  chan struct{}
}

func newActive(ctx context.Context) active {
	return active{ctx, make(chan struct{})}
}

func (c active) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c active) done() {
	close(c.ch)
}

type ctxRes struct {
	active
	r interface{}
}

func (c *ctxRes) Resolve(r interface{}, _ uint64) {
	c.r = r
	c.done()
}

type ctxBatch struct {
	active
	r   []interface{}
	o   []uint32
	cnt uint32
}

func (s *ctxBatch) Resolve(res interface{}, i uint64) {
	if atomic.CompareAndSwapUint32(&s.o[i], 0, 1) {
		s.r[i] = res
		if int(atomic.AddUint32(&s.cnt, 1)) == len(s.r) {
			s.done()
		}
	}
}

// SyncCtxIterator is a context-aware synchronous wrapper over Scanner.
type SyncCtxIterator struct {
	ctx context.Context
	s   Scanner
}

// Next returns the next page of keys, or ScanEOF when iteration finished.
func (s SyncCtxIterator) Next() ([]string, error) {
	res := ctxRes{active: newActive(s.ctx)}
	s.s.Next(&res)
	select {
	case <-s.ctx.Done():
		return nil, ErrRequestCancelled.WrapWithNoMessage(s.ctx.Err())
	case <-res.ch:
	}
	if err := AsError(res.r); err != nil {
		return nil, err
	} else if res.r == nil {
		return nil, ScanEOF
	}
	return res.r.([]string), nil
}
