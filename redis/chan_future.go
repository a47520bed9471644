package redis

// ChanFutured wraps a Sender with futures observable through channel closing.
type ChanFutured struct {
	S Sender
}

// Send sends a request and returns its future.
func (s ChanFutured) Send(r Request) *ChanFuture {
	f := &ChanFuture{wait: make(chan struct{})}
	s.S.Send(r, f, 0)
	return f
}

// SendMany sends several requests pipelined and returns their futures.
func (s ChanFutured) SendMany(reqs []Request) ChanFutures {
	futures := make(ChanFutures, len(reqs))
	for i := range futures {
		futures[i] = &ChanFuture{wait: make(chan struct{})}
	}
	s.S.SendMany(reqs, futures, 0)
	return futures
}

// SendTransaction sends requests wrapped in MULTI/EXEC and returns the
// transaction future.
func (s ChanFutured) SendTransaction(r []Request) *ChanTransaction {
	future := &ChanTransaction{
		ChanFuture: ChanFuture{wait: make(chan struct{})},
	}
	s.S.SendTransaction(r, future, 0)
	return future
}

// ChanFuture is a Future with a completion channel.
type ChanFuture struct {
	r    interface{}
	wait chan struct{}
}

// Value waits for the result and returns it.
func (f *ChanFuture) Value() interface{} {
	<-f.wait
	return f.r
}

// Done returns the channel closed on completion.
func (f *ChanFuture) Done() <-chan struct{} {
	return f.wait
}

// Resolve implements Future.
func (f *ChanFuture) Resolve(res interface{}, _ uint64) {
	f.r = res
	close(f.wait)
}

// Cancelled implements Future.
func (f *ChanFuture) Cancelled() bool {
	return false
}

// ChanFutures is a set of futures for a batch.
type ChanFutures []*ChanFuture

// Cancelled implements Future.
func (f ChanFutures) Cancelled() bool {
	return false
}

// Resolve implements Future.
func (f ChanFutures) Resolve(res interface{}, i uint64) {
	f[i].Resolve(res, i)
}

// ChanTransaction is the future of a transaction.
type ChanTransaction struct {
	ChanFuture
}

// Results waits for EXEC and unpacks its aggregate reply.
func (f *ChanTransaction) Results() ([]interface{}, error) {
	<-f.wait
	return TransactionResponse(f.r)
}
