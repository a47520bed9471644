package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// Script is a registered server-side script. The content hash is a pure
// function of the source and is computed once at registration; it never has
// to be learned from the server.
type Script struct {
	// Name is the logical name the script is registered under.
	Name string
	// Source is the full script text.
	Source string
	// KeyCount is the declared number of keys among the arguments.
	KeyCount int
	// ArgProc optionally transforms arguments before sending.
	ArgProc func(keysAndArgs []interface{}) []interface{}
	// ReplyProc optionally transforms the decoded reply.
	ReplyProc Proc

	hash string
}

// NewScript registers a script and precomputes its content hash.
func NewScript(name, source string, keyCount int) *Script {
	sum := sha1.Sum([]byte(source))
	return &Script{
		Name:     name,
		Source:   source,
		KeyCount: keyCount,
		hash:     hex.EncodeToString(sum[:]),
	}
}

// Hash returns the hex content hash used for the hash-based invocation form.
func (s *Script) Hash() string {
	return s.hash
}

func (s *Script) request(bySource bool, keysAndArgs []interface{}) Request {
	args := make([]interface{}, 0, len(keysAndArgs)+2)
	if bySource {
		args = append(args, s.Source)
	} else {
		args = append(args, s.hash)
	}
	args = append(args, s.KeyCount)
	args = append(args, keysAndArgs...)
	if bySource {
		return Request{"EVAL", args}
	}
	return Request{"EVALSHA", args}
}

// Send invokes the script through snd: first by hash, and if the server's
// script cache turns out cold, once more by full source.
func (s *Script) Send(snd Sender, cb Future, n uint64, keysAndArgs ...interface{}) {
	if s.ArgProc != nil {
		keysAndArgs = s.ArgProc(keysAndArgs)
	}
	f := &scriptFuture{script: s, snd: snd, cb: cb, args: keysAndArgs, n: n}
	snd.Send(s.request(false, keysAndArgs), f, n)
}

// Do invokes the script and waits for its transformed reply.
func (s *Script) Do(ctx context.Context, snd Sender, keysAndArgs ...interface{}) interface{} {
	res := ctxRes{active: newActive(ctx)}
	s.Send(snd, &res, 0, keysAndArgs...)
	select {
	case <-ctx.Done():
		return ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-res.ch:
		return res.r
	}
}

// QueueScript appends a script invocation to the transaction. The source
// invocation form is used: the per-command hash fallback is impossible in the
// middle of an atomic batch, and the source form cannot miss the cache.
func (t *Tx) QueueScript(s *Script, keysAndArgs ...interface{}) *Tx {
	if s.ArgProc != nil {
		keysAndArgs = s.ArgProc(keysAndArgs)
	}
	return t.QueueProc(s.request(true, keysAndArgs), s.ReplyProc)
}

type scriptFuture struct {
	script  *Script
	snd     Sender
	cb      Future
	args    []interface{}
	n       uint64
	retried bool
}

func (f *scriptFuture) Cancelled() bool {
	return f.cb.Cancelled()
}

func (f *scriptFuture) Resolve(res interface{}, _ uint64) {
	if e := AsErrorx(res); e != nil && e.IsOfType(ErrNoScript) && !f.retried {
		f.retried = true
		f.snd.Send(f.script.request(true, f.args), f, f.n)
		return
	}
	if f.script.ReplyProc != nil && AsError(res) == nil {
		res = f.script.ReplyProc(res)
	}
	f.cb.Resolve(res, f.n)
}
