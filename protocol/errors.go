package protocol

import (
	"errors"
	"fmt"

	"github.com/hupe1980/grantmesh/core"
)

// ErrRateLimited is returned when an agent exceeds its call budget.
var ErrRateLimited = errors.New("rate limited")

// Category is the machine readable error class carried on the wire.
type Category string

const (
	CategoryNotFound         Category = "NOT_FOUND"
	CategoryInvalidArgument  Category = "INVALID_ARGUMENT"
	CategoryNotConnected     Category = "NOT_CONNECTED"
	CategoryTransportFailure Category = "TRANSPORT_FAILURE"
	CategoryRateLimited      Category = "RATE_LIMITED"
	CategoryInternal         Category = "INTERNAL"
)

// JSON-RPC numeric codes. The -320xx range holds application codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32004
	CodeNotConnected   = -32005
	CodeTransport      = -32006
	CodeRateLimited    = -32029
)

// ErrorData is the structured part of an Error.
type ErrorData struct {
	Category Category `json:"category"`
	Details  any      `json:"details,omitempty"`
}

// Error is a categorized JSON-RPC error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Category(), e.Code, e.Message)
}

// Category returns the error class, falling back to INTERNAL.
func (e *Error) Category() Category {
	if e.Data == nil || e.Data.Category == "" {
		return CategoryInternal
	}
	return e.Data.Category
}

// Unwrap maps the category back to a sentinel so callers on the far side of a
// transport can use errors.Is(err, core.ErrNotFound).
func (e *Error) Unwrap() error {
	switch e.Category() {
	case CategoryNotFound:
		return core.ErrNotFound
	case CategoryInvalidArgument:
		return core.ErrInvalidArgument
	case CategoryNotConnected:
		return core.ErrNotConnected
	case CategoryTransportFailure:
		return core.ErrTransport
	case CategoryRateLimited:
		return ErrRateLimited
	}
	return nil
}

// NewError builds an Error for category with the matching numeric code.
func NewError(category Category, message string, details any) *Error {
	return &Error{Code: codeFor(category), Message: message, Data: &ErrorData{Category: category, Details: details}}
}

// MethodNotFound reports an unknown JSON-RPC method.
func MethodNotFound(method string) *Error {
	e := NewError(CategoryInvalidArgument, fmt.Sprintf("method %q not found", method), nil)
	e.Code = CodeMethodNotFound
	return e
}

// ParseError reports a malformed request body.
func ParseError(err error) *Error {
	e := NewError(CategoryInvalidArgument, fmt.Sprintf("parse error: %v", err), nil)
	e.Code = CodeParseError
	return e
}

// InvalidRequest reports a structurally invalid envelope.
func InvalidRequest(msg string) *Error {
	e := NewError(CategoryInvalidArgument, msg, nil)
	e.Code = CodeInvalidRequest
	return e
}

func codeFor(c Category) int {
	switch c {
	case CategoryNotFound:
		return CodeNotFound
	case CategoryInvalidArgument:
		return CodeInvalidParams
	case CategoryNotConnected:
		return CodeNotConnected
	case CategoryTransportFailure:
		return CodeTransport
	case CategoryRateLimited:
		return CodeRateLimited
	}
	return CodeInternalError
}

// detailer is implemented by errors that carry structured details for the wire.
type detailer interface {
	ErrorDetails() any
}

// Categorize converts any error into a wire Error. An *Error anywhere in the
// chain is returned as is; otherwise the category is derived from the
// sentinel the error wraps.
func Categorize(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var details any
	var d detailer
	if errors.As(err, &d) {
		details = d.ErrorDetails()
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		return NewError(CategoryNotFound, err.Error(), details)
	case errors.Is(err, core.ErrInvalidArgument):
		return NewError(CategoryInvalidArgument, err.Error(), details)
	case errors.Is(err, core.ErrNotConnected):
		return NewError(CategoryNotConnected, err.Error(), details)
	case errors.Is(err, core.ErrTransport):
		return NewError(CategoryTransportFailure, err.Error(), details)
	case errors.Is(err, ErrRateLimited):
		return NewError(CategoryRateLimited, err.Error(), details)
	}
	return NewError(CategoryInternal, err.Error(), details)
}
