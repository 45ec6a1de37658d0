package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument = Code(codes.InvalidArgument)
	CodeNotFound        = Code(codes.NotFound)
	CodeAlreadyExists   = Code(codes.AlreadyExists)
	CodeAborted         = Code(codes.Aborted)
	CodeUnavailable     = Code(codes.Unavailable)
	CodeDataLoss        = Code(codes.DataLoss)
	CodeInternal        = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument: http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeAlreadyExists:   http.StatusConflict,
	CodeAborted:         http.StatusConflict,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeDataLoss:        http.StatusInternalServerError,
	CodeInternal:        http.StatusInternalServerError,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
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
	s := fmt.Sprintf("code: %s, message: %s", codes.Code(e.Code), e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as *Error, wrapping anything unknown as internal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// HasCode reports whether err carries an *Error with the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Parameter reports bad command input.
func Parameter(format string, args ...any) *Error {
	return New(CodeInvalidArgument, WithMessagef(format, args...))
}

// AlreadyActive reports that the chat already runs a quiz.
func AlreadyActive(chatID int64) *Error {
	return New(CodeAlreadyExists, WithMessagef("a quiz is already active: chat=%d", chatID))
}

// NoActiveSession reports that the chat has no running quiz.
func NoActiveSession(chatID int64) *Error {
	return New(CodeNotFound, WithMessagef("no active quiz: chat=%d", chatID))
}

// Generation reports that the question source could not produce a usable batch.
func Generation(err error) *Error {
	return New(CodeUnavailable, WithMessagef("question generation failed"), WithCause(err))
}

// StorageCorruption reports a persisted record that failed validation.
func StorageCorruption(key string, err error) *Error {
	return New(CodeDataLoss, WithMessagef("corrupt session record: key=%s", key), WithCause(err))
}

// ConcurrencyViolation reports a write that raced another writer of the same record.
func ConcurrencyViolation(key string, err error) *Error {
	return New(CodeAborted, WithMessagef("concurrent write detected: key=%s", key), WithCause(err))
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
