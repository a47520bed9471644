package redis

import (
	"errors"
)

// Sender is the asynchronous core interface implemented by a connection.
// All higher layers (Sync wrappers, transactions, scripts) are built on it.
type Sender interface {
	// Send enqueues a single command. cb is resolved with the reply in wire
	// order relative to every other command on the same connection.
	Send(r Request, cb Future, n uint64)
	// SendMany enqueues a batch back-to-back. cb is resolved once per request
	// with n set to the request's position.
	SendMany(r []Request, cb Future, n uint64)
	// SendTransaction wraps requests into MULTI/EXEC and resolves cb with the
	// aggregate reply of EXEC (nil aggregate reply is a transaction abort).
	SendTransaction(r []Request, cb Future, n uint64)
	// Scanner returns an iterator over a SCAN family command.
	Scanner(opts ScanOpts) Scanner
	// Close shuts the connection down for good.
	Close()
}

// Scanner is an iterator over SCAN results.
type Scanner interface {
	Next(cb Future)
}

// ScanEOF signals the end of a scan iteration.
var ScanEOF = errors.New("iteration finished")

// ScanOpts describes one SCAN family iteration.
type ScanOpts struct {
	// Cmd is SCAN, HSCAN, SSCAN or ZSCAN. Default is SCAN.
	Cmd string
	// Key is the hash/set key for the non-SCAN variants.
	Key string
	// Match is the glob pattern.
	Match string
	// Count is the page-size hint.
	Count int
}

// Request builds the command for the given iterator position.
func (s ScanOpts) Request(it []byte) Request {
	if it == nil {
		it = []byte("0")
	}
	args := []interface{}{it}
	if s.Cmd == "" {
		s.Cmd = "SCAN"
	}
	if s.Cmd != "SCAN" {
		args = append([]interface{}{s.Key}, args...)
	}
	if s.Match != "" {
		args = append(args, "MATCH", s.Match)
	}
	if s.Count > 0 {
		args = append(args, "COUNT", s.Count)
	}
	return Request{s.Cmd, args}
}

// ScannerBase is the common part of Scanner implementations.
type ScannerBase struct {
	ScanOpts
	Iter []byte
	Err  error
	cb   Future
}

// DoNext sends the next page request through snd.
func (s *ScannerBase) DoNext(cb Future, snd Sender) {
	s.cb = cb
	snd.Send(s.ScanOpts.Request(s.Iter), s, 0)
}

// IterLast reports whether the iterator reached its zero position.
func (s *ScannerBase) IterLast() bool {
	return len(s.Iter) == 1 && s.Iter[0] == '0'
}

// Cancelled implements Future.
func (s *ScannerBase) Cancelled() bool {
	return s.cb.Cancelled()
}

// Resolve implements Future.
func (s *ScannerBase) Resolve(res interface{}, _ uint64) {
	var keys []string
	s.Iter, keys, s.Err = ScanResponse(res)
	cb := s.cb
	s.cb = nil
	if s.Err != nil {
		cb.Resolve(s.Err, 0)
	} else {
		cb.Resolve(keys, 0)
	}
}
