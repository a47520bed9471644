package redis

import (
	"github.com/joomcode/errorx"
)

// Errors is the namespace for all errors produced by this client.
var Errors = errorx.NewNamespace("redmux")

var (
	// ErrTraitNotSent marks errors for requests that were certainly not sent
	// to the server, and therefore may be safely reissued by the caller.
	ErrTraitNotSent = errorx.RegisterTrait("request_not_sent")
	// ErrTraitConnectivity marks io and connection level errors. When a request
	// fails with such error, it is not known whether the server executed it.
	ErrTraitConnectivity = errorx.RegisterTrait("connectivity")
	// ErrTraitFatal marks errors that tear the connection down for good:
	// protocol corruption and rejected credentials.
	ErrTraitFatal = errorx.RegisterTrait("fatal")
)

// ErrOpts - wrong options passed to constructor.
var ErrOpts = Errors.NewSubNamespace("opts")

var (
	// ErrContextIsNil - context is not passed to constructor.
	ErrContextIsNil = ErrOpts.NewType("context_is_nil")
	// ErrNoAddressProvided - no address given.
	ErrNoAddressProvided = ErrOpts.NewType("no_address")
)

// ErrRequest - request malformed or rejected locally. Never sent to the server.
var ErrRequest = Errors.NewSubNamespace("request", ErrTraitNotSent)

var (
	// ErrArgumentType - argument is not serializable.
	ErrArgumentType = ErrRequest.NewType("argument_type")
	// ErrBatchFormat - some other command in the batch is malformed.
	ErrBatchFormat = ErrRequest.NewType("batch_format")
	// ErrCommandForbidden - blocking and connection-mode-switching commands are
	// not allowed through the regular pipeline.
	ErrCommandForbidden = ErrRequest.NewType("command_forbidden")
	// ErrSubscriberMode - connection is in subscriber mode, only the
	// subscribe/unsubscribe command family is accepted.
	ErrSubscriberMode = ErrRequest.NewType("subscriber_mode")
	// ErrQueueOverflow - offline queue bound exceeded, command never sent.
	ErrQueueOverflow = ErrRequest.NewType("queue_overflow")
	// ErrRequestCancelled - caller cancelled the command before it was written.
	ErrRequestCancelled = ErrRequest.NewType("request_cancelled")
)

// ErrConnection - connection level failures. Requests failing with types from
// this namespace were definitely not sent anywhere.
var ErrConnection = Errors.NewSubNamespace("connection", ErrTraitConnectivity)

var (
	// ErrNotConnected - connection is closed for good, no more requests accepted.
	ErrNotConnected = ErrConnection.NewType("not_connected", ErrTraitNotSent)
	// ErrDial - connection establishing was not successful.
	ErrDial = ErrConnection.NewType("could_not_connect", ErrTraitNotSent)
	// ErrAuth - password didn't match. Never retried.
	ErrAuth = ErrConnection.NewType("auth", ErrTraitNotSent, ErrTraitFatal)
	// ErrConnSetup - other connection initialization error (handshake).
	ErrConnSetup = ErrConnection.NewType("conn_setup", ErrTraitNotSent)
	// ErrContextClosed - connection was explicitly shut down.
	ErrContextClosed = ErrConnection.NewType("context_closed", ErrTraitNotSent)
)

// ErrIO - read/write error or timeout. The request was already on the wire,
// it is not known whether the server executed it.
var ErrIO = Errors.NewType("io", ErrTraitConnectivity)

// ErrConnClosed - the connection dropped while the command was in flight.
// Never resent automatically (see SendIdempotent for the explicit opt-in).
var ErrConnClosed = ErrIO.NewSubtype("conn_closed")

// ErrResponse - response from server is malformed or unexpected.
var ErrResponse = Errors.NewSubNamespace("response")

var (
	// ErrProtocol - bytes from server do not form a valid reply. Not locally
	// recoverable, the connection is torn down.
	ErrProtocol = ErrResponse.NewType("protocol", ErrTraitFatal)
	// ErrResponseUnexpected - reply is well-formed, but its shape is not
	// the one expected for the command.
	ErrResponseUnexpected = ErrResponse.NewType("unexpected")
	// ErrHeaderlineTooLarge - reply header line too large.
	ErrHeaderlineTooLarge = ErrProtocol.NewSubtype("headerline_too_large")
	// ErrHeaderlineEmpty - reply header line is empty.
	ErrHeaderlineEmpty = ErrProtocol.NewSubtype("headerline_empty")
	// ErrIntegerParsing - integer in reply malformed.
	ErrIntegerParsing = ErrProtocol.NewSubtype("integer_parsing")
	// ErrNoFinalRN - no final "\r\n" after a bulk string body.
	ErrNoFinalRN = ErrProtocol.NewSubtype("no_final_rn")
	// ErrLengthOutOfRange - bulk or array length in a reply header is
	// outside what a real server can produce.
	ErrLengthOutOfRange = ErrProtocol.NewSubtype("length_out_of_range")
	// ErrUnknownHeaderType - unknown reply type marker.
	ErrUnknownHeaderType = ErrProtocol.NewSubtype("unknown_header_type")
	// ErrPing - ping receives mismatched response.
	ErrPing = ErrResponse.NewType("ping")
)

// ErrResult - just a regular error reply from the server. The issuing caller
// sees it; the connection stays healthy.
var ErrResult = Errors.NewType("result")

var (
	// ErrNoScript - EVALSHA met a cold script cache ("NOSCRIPT ...").
	ErrNoScript = ErrResult.NewSubtype("noscript")
	// ErrLoading - server is loading its dataset ("LOADING ...").
	ErrLoading = ErrResult.NewSubtype("loading")
	// ErrExecAbort - transaction discarded because a command was rejected at
	// queue time ("EXECABORT ...").
	ErrExecAbort = ErrResult.NewSubtype("execabort")
)

// ErrTxAborted - EXEC returned a nil aggregate reply: the whole transaction
// was aborted by the server. Distinct from any member command's own error.
var ErrTxAborted = Errors.NewType("transaction_aborted")

var (
	// EKConnection - property with the connection the error happened on.
	EKConnection = errorx.RegisterProperty("connection")
	// EKAddress - remote address.
	EKAddress = errorx.RegisterPrintableProperty("address")
	// EKRequest - request that triggered the error.
	EKRequest = errorx.RegisterPrintableProperty("request")
	// EKRequests - batch of requests that triggered the error.
	EKRequests = errorx.RegisterPrintableProperty("requests")
	// EKResponse - unexpected response value.
	EKResponse = errorx.RegisterPrintableProperty("response")
	// EKArgPos - position of the offending argument.
	EKArgPos = errorx.RegisterPrintableProperty("argpos")
	// EKVal - offending value itself.
	EKVal = errorx.RegisterPrintableProperty("val")
	// EKAttempt - reconnection attempt number.
	EKAttempt = errorx.RegisterPrintableProperty("attempt")
	// EKDb - db number to select.
	EKDb = errorx.RegisterPrintableProperty("db")
	// EKChannel - pub/sub channel or pattern name.
	EKChannel = errorx.RegisterPrintableProperty("channel")
)
