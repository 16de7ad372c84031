package remote

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Kind categorizes a reader failure. The filesystem layer maps kinds to errno
// values, so new kinds need a mapping there as well.
type Kind int

const (
	// KindGeneric is an I/O failure that may carry a platform error code.
	KindGeneric Kind = iota
	KindAccess
	KindReadWrite
	KindNotFound
	KindProtocol
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "IOAccessError"
	case KindReadWrite:
		return "IOReadWriteError"
	case KindNotFound:
		return "NotFoundError"
	case KindProtocol:
		return "ProtocolError"
	case KindUnsupported:
		return "UnsupportedError"
	default:
		return "GenericIOError"
	}
}

type Error struct {
	Kind        Kind
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Description, e.Err)
	}

	return fmt.Sprintf("%v: %v", e.Kind, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno returns the platform error code carried by a generic failure, or zero.
func (e *Error) Errno() syscall.Errno {
	var code syscall.Errno
	if errors.As(e.Err, &code) {
		return code
	}

	return 0
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:        kind,
		Description: fmt.Sprintf(format, args...),
		Err:         err,
	}
}

// transportError classifies a failure that happened before a response arrived.
// Deadline expiry is reported as ETIMEDOUT so callers can surface it as such.
func transportError(ctx context.Context, err error, format string, args ...interface{}) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindGeneric, syscall.ETIMEDOUT, format, args...)
	}

	return newError(KindGeneric, err, format, args...)
}
