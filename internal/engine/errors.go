package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies engine failures
type Code string

// Error codes
const (
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodePriceUnavailable    Code = "PRICE_UNAVAILABLE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeTimeout             Code = "TIMEOUT"
	CodeInternal            Code = "INTERNAL"
)

// StatusCode maps a code to the statusCode carried in error replies
func (c Code) StatusCode() int {
	switch c {
	case CodeInvalidArgument, CodeInsufficientBalance, CodePriceUnavailable:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified engine failure
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of an engine error, CodeInternal for anything else
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err is an engine error with the given code
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
