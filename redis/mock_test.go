package redis_test

import (
	"sync"

	"github.com/redmux/redmux/redis"
)

// mockSender answers every command synchronously through the configured
// handlers and records what was sent.
type mockSender struct {
	mu   sync.Mutex
	sent []redis.Request

	onSend func(r redis.Request) interface{}
	onTx   func(reqs []redis.Request) interface{}
}

func (m *mockSender) record(r redis.Request) {
	m.mu.Lock()
	m.sent = append(m.sent, r)
	m.mu.Unlock()
}

func (m *mockSender) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, r := range m.sent {
		out[i] = r.Cmd
	}
	return out
}

func (m *mockSender) Send(r redis.Request, cb redis.Future, n uint64) {
	m.record(r)
	cb.Resolve(m.onSend(r), n)
}

func (m *mockSender) SendMany(reqs []redis.Request, cb redis.Future, start uint64) {
	for i, r := range reqs {
		m.record(r)
		cb.Resolve(m.onSend(r), start+uint64(i))
	}
}

func (m *mockSender) SendTransaction(reqs []redis.Request, cb redis.Future, start uint64) {
	for _, r := range reqs {
		m.record(r)
	}
	cb.Resolve(m.onTx(reqs), start)
}

func (m *mockSender) Scanner(opts redis.ScanOpts) redis.Scanner {
	return &mockScanner{ScannerBase: redis.ScannerBase{ScanOpts: opts}, s: m}
}

func (m *mockSender) Close() {}

type mockScanner struct {
	redis.ScannerBase
	s *mockSender
}

func (s *mockScanner) Next(cb redis.Future) {
	if s.Err != nil {
		cb.Resolve(s.Err, 0)
		return
	}
	if s.IterLast() {
		cb.Resolve(nil, 0)
		return
	}
	s.DoNext(cb, s.s)
}
