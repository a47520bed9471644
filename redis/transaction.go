package redis

import (
	"context"
)

// Proc transforms a single decoded reply value. Procs are declared per
// command and applied positionally to the aggregate EXEC reply, which allows
// heterogeneous decoding inside one transaction (script replies included).
type Proc func(res interface{}) interface{}

// Tx accumulates commands locally and sends nothing until Exec/Send is
// requested. From the caller's view the transaction is all-or-nothing even
// though it spans several wire round trips.
type Tx struct {
	s     Sender
	reqs  []Request
	procs []Proc
}

// Multi starts a transaction over the given sender.
func Multi(s Sender) *Tx {
	return &Tx{s: s}
}

// Queue appends a command to the transaction.
func (t *Tx) Queue(cmd string, args ...interface{}) *Tx {
	return t.QueueProc(Request{cmd, args}, nil)
}

// QueueReq appends a prebuilt request to the transaction.
func (t *Tx) QueueReq(r Request) *Tx {
	return t.QueueProc(r, nil)
}

// QueueProc appends a request together with its reply transform.
func (t *Tx) QueueProc(r Request, proc Proc) *Tx {
	t.reqs = append(t.reqs, r)
	t.procs = append(t.procs, proc)
	return t
}

// Len returns the number of queued commands.
func (t *Tx) Len() int {
	return len(t.reqs)
}

// Send executes the transaction asynchronously. cb is resolved with the
// transformed aggregate reply, or with an error (ErrTxAborted when the server
// discarded the whole transaction).
func (t *Tx) Send(cb Future) {
	t.s.SendTransaction(t.reqs, &txFuture{cb: cb, procs: t.procs}, 0)
}

// Exec executes the transaction and waits for its outcome.
func (t *Tx) Exec(ctx context.Context) ([]interface{}, error) {
	res := ctxRes{active: newActive(ctx)}
	t.Send(&res)
	var r interface{}
	select {
	case <-ctx.Done():
		r = ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-res.ch:
		r = res.r
	}
	return TransactionResponse(r)
}

type txFuture struct {
	cb    Future
	procs []Proc
}

func (t *txFuture) Cancelled() bool {
	return t.cb.Cancelled()
}

func (t *txFuture) Resolve(res interface{}, n uint64) {
	if res == nil {
		// nil EXEC reply: the server discarded the transaction
		t.cb.Resolve(ErrTxAborted.NewWithNoMessage(), n)
		return
	}
	if arr, ok := res.([]interface{}); ok && len(arr) == len(t.procs) {
		for i, proc := range t.procs {
			if proc == nil || AsError(arr[i]) != nil {
				continue
			}
			arr[i] = proc(arr[i])
		}
	}
	t.cb.Resolve(res, n)
}
