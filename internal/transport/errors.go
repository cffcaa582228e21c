package transport

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by Receive when no datagram arrived in time.
var ErrTimeout = errors.New("receive timed out")

// ErrClosed is returned by operations on a closed Endpoint.
var ErrClosed = errors.New("endpoint closed")

// Endpoint operations reported in Error.Op.
const (
	OpBind    = "bind"
	OpSend    = "send"
	OpReceive = "receive"
)

// Error describes a failed endpoint operation, in the manner of net.OpError.
// A bind failure is fatal for the owning role; send and receive failures are
// recoverable.
type Error struct {
	Op   string // OpBind, OpSend or OpReceive
	Addr string // local address for bind/receive, destination for send
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsBindError reports whether err is (or wraps) a failed bind.
func IsBindError(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Op == OpBind
}
