package redis

import (
	"fmt"

	"github.com/joomcode/errorx"
)

// AsError casts a result value to error if it is an error.
func AsError(v interface{}) error {
	e, _ := v.(error)
	return e
}

// AsErrorx casts a result value to *errorx.Error if it is an error.
// Panics if the value is an error of any other underlying type: every error
// produced by this client is an errorx one.
func AsErrorx(v interface{}) *errorx.Error {
	e, _ := v.(*errorx.Error)
	if e == nil {
		if _, ok := v.(error); ok {
			panic(fmt.Errorf("result should be either *errorx.Error, or not error at all, but got %#v", v))
		}
	}
	return e
}

// TransactionResponse parses the reply to EXEC. A nil aggregate reply means
// the server aborted the whole transaction and is translated to ErrTxAborted.
func TransactionResponse(res interface{}) ([]interface{}, error) {
	if arr, ok := res.([]interface{}); ok {
		return arr, nil
	}
	if res == nil {
		res = ErrTxAborted.NewWithNoMessage()
	}
	if _, ok := res.(error); !ok {
		res = ErrResponseUnexpected.New("unexpected response to EXEC").WithProperty(EKResponse, res)
	}
	return nil, res.(error)
}

// ScanResponse parses the reply to a SCAN family command: next iterator
// position plus the page of keys.
func ScanResponse(res interface{}) ([]byte, []string, error) {
	if err := AsError(res); err != nil {
		return nil, nil, err
	}
	var ok bool
	var arr []interface{}
	var it []byte
	var keys []interface{}
	var strs []string
	if arr, ok = res.([]interface{}); !ok || len(arr) != 2 {
		goto wrong
	}
	if it, ok = arr[0].([]byte); !ok {
		goto wrong
	}
	if keys, ok = arr[1].([]interface{}); !ok {
		goto wrong
	}
	strs = make([]string, len(keys))
	for i, k := range keys {
		var b []byte
		if b, ok = k.([]byte); !ok {
			goto wrong
		}
		strs[i] = string(b)
	}
	return it, strs, nil

wrong:
	return nil, nil, ErrResponseUnexpected.New("unexpected response to SCAN").WithProperty(EKResponse, res)
}
