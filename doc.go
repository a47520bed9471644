/*
Package redmux - pipelined single-connection Redis client.

https://redis.io/topics/pipelining

Pipelining improves maximum throughput that redis can serve, and reduces CPU usage both on
redis server and on client. Usually there are dozens of concurrent goroutines, each sends
just one request at a time, therefore pipelining has to be implicit: all requests are fed
into a single connection, and replies are continuously read from another goroutine and
matched back to callers in wire order.

Commands issued before the connection is established (or while it reconnects) are held in
a bounded offline queue and replayed, in original order, the moment the connection becomes
ready. Commands that were already on the wire when a connection dropped are failed with
ErrConnClosed instead of being resent: the client cannot know whether the server executed
them. A caller may opt into replay per command with SendIdempotent.

Capabilities

- implicit pipelining over one socket, replies settle callers in exact send order,

- transparent reconnection driven by a pluggable deterministic retry policy,

- MULTI/EXEC transactions with per-command reply transforms,

- server-side scripts registered once, invoked by content hash with automatic
fallback to the full source when the server's script cache is cold,

- subscription mode: channel and pattern listeners multiplexed on the same socket,

- hook for lifecycle event logging.

Limitations

- blocking calls (`BLPOP`, `BRPOP`, `BRPOPLPUSH`, `BZPOPMIN`, `BZPOPMAX`, `XREAD`,
`XREADGROUP`, `WAIT`, `SAVE`) are rejected: they would stall every pipelined caller,

- `WATCH` is rejected: it is useless and even harmful when concurrent goroutines share
the same connection,

- no cluster topology discovery or sharding: an external layer may open many
independent connections instead.

Structure

- root package is empty

- common functionality is in redis subpackage

- wire encoding/decoding is in resp subpackage

- single connection is in redisconn subpackage

Usage

redisconn.Connect creates an implementation of redis.Sender. redis.Sender provides
asynchronous api for sending requests and transactions. That api accepts redis.Future
interface implementations as an argument and fulfills them asynchronously. Usually you
don't need to provide your own redis.Future implementation, but rather use synchronous
wrappers:

- redis.Sync{sender} - provides simple synchronous api,

- redis.SyncCtx{sender} - provides same api, but all methods accept context.Context, and
methods return immediately if that context is closed,

- redis.ChanFutured{sender} - provides api with future through channel closing.

Types accepted as command arguments: nil, []byte, string, int (and all other integer types),
float64, float32, bool. All arguments are converted to redis bulk strings as usual (ie
string and bytes - as is; numbers - in decimal notation). bool converted as "0/1",
nil converted to empty string.

No custom types are used for request results. Results are de-serialized into plain go
types and are returned as interface{}:

	redis        | go
	-------------|-------
	plain string | string
	bulk string  | []byte
	integer      | int64
	array        | []interface{}
	error        | error (*errorx.Error)

IO, connection, and other errors are not returned separately but as result (and has same
*errorx.Error underlying type).
*/
package redmux
