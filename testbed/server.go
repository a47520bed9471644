// Package testbed runs a minimal in-process redis look-alike for tests: a
// real TCP listener speaking enough of the protocol to exercise pipelining,
// handshakes, transactions, scripts and pub/sub, with hooks to drop clients
// or stop the listener to provoke reconnection.
package testbed

import (
	"crypto/sha1"
	"encoding/hex"
	"net"
	"path"
	"sync"
)

// ScriptHandler evaluates one registered script.
type ScriptHandler func(keys, args []string) interface{}

// Server is one fake redis instance.
type Server struct {
	l net.Listener

	mu       sync.Mutex
	password string
	data     map[string]string
	defined  map[string]scriptDef
	loaded   map[string]bool
	clients  map[*client]struct{}
	stopped  bool
	silent   bool
}

type scriptDef struct {
	source string
	fn     ScriptHandler
}

// Start listens on an ephemeral localhost port and begins accepting clients.
func Start() (*Server, error) {
	return StartAt("127.0.0.1:0")
}

// StartAt listens on a fixed address. Used by tests that reserve an address
// first and bring the server up while clients are already retrying it.
func StartAt(addr string) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		l:       l,
		data:    make(map[string]string),
		defined: make(map[string]scriptDef),
		loaded:  make(map[string]bool),
		clients: make(map[*client]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr is the address clients should dial.
func (s *Server) Addr() string {
	return s.l.Addr().String()
}

// RequireAuth makes the server demand AUTH with the given password. Applies
// to clients connecting afterwards.
func (s *Server) RequireAuth(password string) {
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// DefineScript registers source under its sha so EVAL can run it. Returns
// the sha. The script still has to be loaded (EVAL or SCRIPT LOAD) before
// EVALSHA succeeds, as on a real server.
func (s *Server) DefineScript(source string, fn ScriptHandler) string {
	hash := sha1.Sum([]byte(source))
	sha := hex.EncodeToString(hash[:])
	s.mu.Lock()
	s.defined[sha] = scriptDef{source: source, fn: fn}
	s.mu.Unlock()
	return sha
}

// FlushScripts forgets loaded scripts, as a restarted server would.
func (s *Server) FlushScripts() {
	s.mu.Lock()
	s.loaded = make(map[string]bool)
	s.mu.Unlock()
}

// Silence makes the server swallow replies instead of writing them, leaving
// clients with commands in flight. Useful to stage a connection drop with
// outstanding commands.
func (s *Server) Silence(on bool) {
	s.mu.Lock()
	s.silent = on
	s.mu.Unlock()
}

// DropClients severs every connected client while the listener keeps
// accepting, provoking client reconnection.
func (s *Server) DropClients() {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
}

// Stop closes the listener and every client.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.l.Close()
	s.DropClients()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		c := &client{srv: s, conn: conn}
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		c.authed = s.password == ""
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go c.run()
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// publish fans a payload out to matching subscribers. Returns the number of
// deliveries, as PUBLISH does.
func (s *Server) publish(channel, payload string) int64 {
	s.mu.Lock()
	type delivery struct {
		c   *client
		msg []interface{}
	}
	var out []delivery
	for c := range s.clients {
		c.submu.Lock()
		if c.subs[channel] {
			out = append(out, delivery{c, []interface{}{
				[]byte("message"), []byte(channel), []byte(payload),
			}})
		}
		for pat := range c.psubs {
			if ok, _ := path.Match(pat, channel); ok {
				out = append(out, delivery{c, []interface{}{
					[]byte("pmessage"), []byte(pat), []byte(channel), []byte(payload),
				}})
			}
		}
		c.submu.Unlock()
	}
	s.mu.Unlock()
	for _, d := range out {
		d.c.reply(d.msg)
	}
	return int64(len(out))
}
