package redis

import (
	"strings"
)

// Command classification table. It is built once at package init and never
// mutated afterwards: independent client instances share it read-only.

const (
	// command blocks the server connection, would stall every pipelined caller
	flagBlocking = 1 << iota
	// command is harmful on a shared pipelined connection
	flagDangerous
	// command is part of the subscribe/unsubscribe family
	flagSubscribe
	// command is accepted while the connection is in subscriber mode
	flagSubscriberSafe
)

var commandFlags = func() map[string]int {
	m := make(map[string]int)
	set := func(list string, flag int) {
		for _, cmd := range strings.Split(list, " ") {
			m[cmd] |= flag
		}
	}
	set("BLPOP BRPOP BRPOPLPUSH BLMOVE BZPOPMIN BZPOPMAX XREAD XREADGROUP WAIT SAVE", flagBlocking)
	set("WATCH SUBSCRIBE UNSUBSCRIBE PSUBSCRIBE PUNSUBSCRIBE", flagDangerous)
	set("SUBSCRIBE UNSUBSCRIBE PSUBSCRIBE PUNSUBSCRIBE", flagSubscribe)
	set("SUBSCRIBE UNSUBSCRIBE PSUBSCRIBE PUNSUBSCRIBE PING QUIT RESET", flagSubscriberSafe)
	return m
}()

func cmdFlags(cmd string) int {
	if f, ok := commandFlags[cmd]; ok {
		return f
	}
	return commandFlags[strings.ToUpper(cmd)]
}

// Blocking reports whether the command would block the whole pipeline.
func Blocking(cmd string) bool {
	return cmdFlags(cmd)&flagBlocking != 0
}

// Dangerous reports whether the command is rejected on a shared pipelined
// connection (WATCH and the raw subscribe family; subscriptions go through
// the dedicated Subscribe/Unsubscribe api instead).
func Dangerous(cmd string) bool {
	return cmdFlags(cmd)&flagDangerous != 0
}

// SubscribeFamily reports whether the command switches or affects
// subscription state.
func SubscribeFamily(cmd string) bool {
	return cmdFlags(cmd)&flagSubscribe != 0
}

// SubscriberSafe reports whether the command is accepted while the connection
// is in subscriber mode.
func SubscriberSafe(cmd string) bool {
	return cmdFlags(cmd)&flagSubscriberSafe != 0
}
