package testbed

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redmux/redmux/resp"
)

type client struct {
	srv  *Server
	conn net.Conn

	wmu sync.Mutex

	submu sync.Mutex
	subs  map[string]bool
	psubs map[string]bool

	authed   bool
	inMulti  bool
	multiErr bool
	queue    [][]string
}

func (c *client) run() {
	defer func() {
		c.conn.Close()
		c.srv.removeClient(c)
	}()
	dec := resp.NewDecoder()
	buf := make([]byte, 16*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				val, ok := dec.Next()
				if !ok {
					break
				}
				parts, perr := toCommand(val)
				if perr != nil {
					c.reply(perr)
					return
				}
				if quit := c.handle(parts); quit {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// toCommand expects an inbound array of bulk strings.
func toCommand(val interface{}) ([]string, error) {
	arr, ok := val.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, errors.New("ERR protocol error: expected command array")
	}
	parts := make([]string, len(arr))
	for i, el := range arr {
		b, ok := el.([]byte)
		if !ok {
			return nil, errors.New("ERR protocol error: expected bulk string")
		}
		parts[i] = string(b)
	}
	return parts, nil
}

func (c *client) reply(v interface{}) {
	c.srv.mu.Lock()
	silent := c.srv.silent
	c.srv.mu.Unlock()
	if silent {
		return
	}
	var buf []byte
	if v == nullArray {
		buf = append(buf, resp.NullArray...)
	} else {
		buf = resp.AppendResponse(buf, v)
	}
	c.wmu.Lock()
	c.conn.Write(buf)
	c.wmu.Unlock()
}

// nullArray is a sentinel for the *-1 reply, distinct from a nil bulk.
var nullArray = &struct{}{}

func (c *client) handle(parts []string) (quit bool) {
	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	switch cmd {
	case "AUTH":
		c.reply(c.auth(args))
		return false
	case "QUIT":
		c.reply("OK")
		return true
	}
	if !c.authed {
		c.reply(errors.New("NOAUTH Authentication required."))
		return false
	}

	switch cmd {
	case "MULTI":
		if c.inMulti {
			c.reply(errors.New("ERR MULTI calls can not be nested"))
		} else {
			c.inMulti = true
			c.multiErr = false
			c.queue = nil
			c.reply("OK")
		}
		return false
	case "EXEC":
		if !c.inMulti {
			c.reply(errors.New("ERR EXEC without MULTI"))
			return false
		}
		queue := c.queue
		aborted := c.multiErr
		c.inMulti = false
		c.queue = nil
		if aborted {
			c.reply(errors.New("EXECABORT Transaction discarded because of previous errors."))
			return false
		}
		results := make([]interface{}, len(queue))
		for i, q := range queue {
			results[i] = c.exec(strings.ToUpper(q[0]), q[1:])
		}
		c.reply(results)
		return false
	case "DISCARD":
		if !c.inMulti {
			c.reply(errors.New("ERR DISCARD without MULTI"))
		} else {
			c.inMulti = false
			c.queue = nil
			c.reply("OK")
		}
		return false
	}

	if c.inMulti {
		if err := checkArity(cmd, args); err != nil {
			c.multiErr = true
			c.reply(err)
		} else {
			c.queue = append(c.queue, parts)
			c.reply("QUEUED")
		}
		return false
	}

	switch cmd {
	case "SUBSCRIBE", "PSUBSCRIBE", "UNSUBSCRIBE", "PUNSUBSCRIBE":
		c.pubsubCmd(cmd, args)
		return false
	case "PUBLISH":
		if len(args) != 2 {
			c.reply(arityErr(cmd))
		} else {
			c.reply(c.srv.publish(args[0], args[1]))
		}
		return false
	}

	c.reply(c.exec(cmd, args))
	return false
}

func (c *client) auth(args []string) interface{} {
	if len(args) != 1 {
		return arityErr("AUTH")
	}
	c.srv.mu.Lock()
	password := c.srv.password
	c.srv.mu.Unlock()
	if password == "" {
		return errors.New("ERR Client sent AUTH, but no password is set")
	}
	if args[0] != password {
		return errors.New("WRONGPASS invalid username-password pair")
	}
	c.authed = true
	return "OK"
}

func arityErr(cmd string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

// checkArity is the queue-time validation MULTI performs.
func checkArity(cmd string, args []string) error {
	switch cmd {
	case "PING", "SCAN", "SCRIPT", "EVAL", "EVALSHA", "DEL", "EXISTS":
		return nil
	case "GET", "INCR", "ECHO", "SELECT":
		if len(args) != 1 {
			return arityErr(cmd)
		}
		return nil
	case "SET", "PUBLISH":
		if len(args) < 2 {
			return arityErr(cmd)
		}
		return nil
	default:
		return fmt.Errorf("ERR unknown command '%s'", cmd)
	}
}

// exec runs one data command and returns its reply value.
func (c *client) exec(cmd string, args []string) interface{} {
	switch cmd {
	case "PING":
		if len(args) == 1 {
			return []byte(args[0])
		}
		return "PONG"
	case "ECHO":
		if len(args) != 1 {
			return arityErr(cmd)
		}
		return []byte(args[0])
	case "SELECT":
		if len(args) != 1 {
			return arityErr(cmd)
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return errors.New("ERR value is not an integer or out of range")
		}
		return "OK"
	case "SET":
		if len(args) < 2 {
			return arityErr(cmd)
		}
		c.srv.mu.Lock()
		c.srv.data[args[0]] = args[1]
		c.srv.mu.Unlock()
		return "OK"
	case "GET":
		if len(args) != 1 {
			return arityErr(cmd)
		}
		c.srv.mu.Lock()
		v, ok := c.srv.data[args[0]]
		c.srv.mu.Unlock()
		if !ok {
			return nil
		}
		return []byte(v)
	case "DEL":
		var n int64
		c.srv.mu.Lock()
		for _, k := range args {
			if _, ok := c.srv.data[k]; ok {
				delete(c.srv.data, k)
				n++
			}
		}
		c.srv.mu.Unlock()
		return n
	case "EXISTS":
		var n int64
		c.srv.mu.Lock()
		for _, k := range args {
			if _, ok := c.srv.data[k]; ok {
				n++
			}
		}
		c.srv.mu.Unlock()
		return n
	case "INCR":
		if len(args) != 1 {
			return arityErr(cmd)
		}
		c.srv.mu.Lock()
		defer c.srv.mu.Unlock()
		cur := c.srv.data[args[0]]
		if cur == "" {
			cur = "0"
		}
		n, err := strconv.ParseInt(cur, 10, 64)
		if err != nil {
			return errors.New("ERR value is not an integer or out of range")
		}
		n++
		c.srv.data[args[0]] = strconv.FormatInt(n, 10)
		return n
	case "SCAN":
		return c.scan(args)
	case "EVAL":
		return c.eval(args, false)
	case "EVALSHA":
		return c.eval(args, true)
	case "SCRIPT":
		return c.script(args)
	default:
		return fmt.Errorf("ERR unknown command '%s'", cmd)
	}
}

func (c *client) scan(args []string) interface{} {
	if len(args) < 1 {
		return arityErr("SCAN")
	}
	cursor, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.New("ERR invalid cursor")
	}
	match := ""
	count := 10
	for i := 1; i+1 < len(args); i += 2 {
		switch strings.ToUpper(args[i]) {
		case "MATCH":
			match = args[i+1]
		case "COUNT":
			if count, err = strconv.Atoi(args[i+1]); err != nil || count <= 0 {
				return errors.New("ERR syntax error")
			}
		default:
			return errors.New("ERR syntax error")
		}
	}

	c.srv.mu.Lock()
	keys := make([]string, 0, len(c.srv.data))
	for k := range c.srv.data {
		keys = append(keys, k)
	}
	c.srv.mu.Unlock()
	sort.Strings(keys)

	if cursor > len(keys) {
		cursor = len(keys)
	}
	end := cursor + count
	if end > len(keys) {
		end = len(keys)
	}
	page := make([]interface{}, 0, end-cursor)
	for _, k := range keys[cursor:end] {
		if match != "" {
			if ok, _ := path.Match(match, k); !ok {
				continue
			}
		}
		page = append(page, []byte(k))
	}
	next := "0"
	if end < len(keys) {
		next = strconv.Itoa(end)
	}
	return []interface{}{[]byte(next), page}
}

func (c *client) eval(args []string, bySha bool) interface{} {
	if len(args) < 2 {
		return arityErr("EVAL")
	}
	nkeys, err := strconv.Atoi(args[1])
	if err != nil || nkeys < 0 || nkeys > len(args)-2 {
		return errors.New("ERR Number of keys can't be negative")
	}
	keys := args[2 : 2+nkeys]
	rest := args[2+nkeys:]

	var sha string
	if bySha {
		sha = strings.ToLower(args[0])
	} else {
		hash := sha1.Sum([]byte(args[0]))
		sha = hex.EncodeToString(hash[:])
	}

	c.srv.mu.Lock()
	def, defined := c.srv.defined[sha]
	loaded := c.srv.loaded[sha]
	if defined && !bySha {
		c.srv.loaded[sha] = true
		loaded = true
	}
	c.srv.mu.Unlock()

	if !defined || (bySha && !loaded) {
		return errors.New("NOSCRIPT No matching script. Please use EVAL.")
	}
	return def.fn(keys, rest)
}

func (c *client) script(args []string) interface{} {
	if len(args) < 1 {
		return arityErr("SCRIPT")
	}
	switch strings.ToUpper(args[0]) {
	case "LOAD":
		if len(args) != 2 {
			return arityErr("SCRIPT")
		}
		hash := sha1.Sum([]byte(args[1]))
		sha := hex.EncodeToString(hash[:])
		c.srv.mu.Lock()
		if _, ok := c.srv.defined[sha]; ok {
			c.srv.loaded[sha] = true
		}
		c.srv.mu.Unlock()
		return []byte(sha)
	case "FLUSH":
		c.srv.FlushScripts()
		return "OK"
	default:
		return fmt.Errorf("ERR Unknown SCRIPT subcommand '%s'", args[0])
	}
}

func (c *client) pubsubCmd(cmd string, names []string) {
	c.submu.Lock()
	if c.subs == nil {
		c.subs = make(map[string]bool)
		c.psubs = make(map[string]bool)
	}
	var acks [][]interface{}
	kind := strings.ToLower(cmd)
	switch cmd {
	case "SUBSCRIBE", "PSUBSCRIBE":
		m := c.subs
		if cmd == "PSUBSCRIBE" {
			m = c.psubs
		}
		for _, name := range names {
			m[name] = true
			acks = append(acks, []interface{}{
				[]byte(kind), []byte(name), int64(len(c.subs) + len(c.psubs)),
			})
		}
	case "UNSUBSCRIBE", "PUNSUBSCRIBE":
		m := c.subs
		if cmd == "PUNSUBSCRIBE" {
			m = c.psubs
		}
		if len(names) == 0 {
			for name := range m {
				names = append(names, name)
			}
			sort.Strings(names)
		}
		for _, name := range names {
			delete(m, name)
			acks = append(acks, []interface{}{
				[]byte(kind), []byte(name), int64(len(c.subs) + len(c.psubs)),
			})
		}
		if len(acks) == 0 {
			acks = append(acks, []interface{}{
				[]byte(kind), nil, int64(len(c.subs) + len(c.psubs)),
			})
		}
	}
	c.submu.Unlock()
	for _, ack := range acks {
		c.reply(ack)
	}
}
