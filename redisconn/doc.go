/*
Package redisconn implements a single connection to a redis server.

All commands are fed into one socket and implicitly pipelined: a command is
appended to the write buffer together with its in-flight queue entry in one
step, so replies are matched back to callers strictly in send order. While
the connection is not ready, commands accumulate in a bounded offline queue
and are flushed, in order, ahead of anything sent after the connection became
ready.

The connection repairs itself: a broken socket is thrown away and a new one
is dialed under the configured RetryPolicy, with subscriptions restored on
every fresh socket. Commands that were in flight when the socket broke fail
with ErrConnClosed since the server may have executed them; SendIdempotent
marks a command safe to replay instead. A rejected AUTH credential is the one
failure that is never retried.
*/
package redisconn
