package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

type Code codes.Code

const (
	CodeInvalidArgument = Code(codes.InvalidArgument)
	CodeNotFound        = Code(codes.NotFound)
	CodeAlreadyExists   = Code(codes.AlreadyExists)
	CodeInternal        = Code(codes.Internal)
	CodeUnauthenticated = Code(codes.Unauthenticated)
	CodeUnavailable     = Code(codes.Unavailable)
)

// code2reply is the fallback wire reply for an error code. Handlers usually
// set an explicit message; this covers errors that bubble up without one.
var code2reply = map[Code]string{
	CodeInvalidArgument: "Invalid command",
	CodeNotFound:        "Not found",
	CodeAlreadyExists:   "Already exists",
	CodeInternal:        "Internal error",
	CodeUnauthenticated: "Invalid username or password",
	CodeUnavailable:     "Service unavailable",
}

type Error struct {
	Code    Code
	Message string
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Reply renders the error as a protocol reply string.
func (e *Error) Reply() string {
	if r, ok := code2reply[e.Code]; ok {
		return r
	}

	return code2reply[CodeInternal]
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func Unavailable(err error) *Error {
	return New(CodeUnavailable, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
