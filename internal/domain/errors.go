package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown                  Code = "UNKNOWN"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeConflict                 Code = "CONFLICT"
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInvalidFilterField       Code = "INVALID_FILTER_FIELD"
	CodeInvalidFilterOperator    Code = "INVALID_FILTER_OPERATOR"
	CodeInvalidFilterValue       Code = "INVALID_FILTER_VALUE"
	CodeMultipleInequalityFields Code = "MULTIPLE_INEQUALITY_FIELDS"
	CodeTransactionScopeExceeded Code = "TRANSACTION_SCOPE_EXCEEDED"
)

// Error is a domain error surfaced to callers.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is reports whether target is a domain error with the same code. A target
// without a message matches any error carrying its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Errorf builds a domain error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata returns a copy of e carrying the key/value pair.
func (e *Error) WithMetadata(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	return &Error{Code: e.Code, Message: e.Message, Metadata: md}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

var (
	// ErrConcurrencyConflict indicates that the underlying storage rejected a
	// write because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrTransactionScopeExceeded is returned by stores that cannot make the
	// requested writes atomic.
	ErrTransactionScopeExceeded = &Error{Code: CodeTransactionScopeExceeded, Message: "transaction spans more entity groups than the store supports"}

	errAlreadyRegistered = &Error{Code: CodeConflict, Message: "You have already registered for this conference"}
	errNoSeats           = &Error{Code: CodeConflict, Message: "There are no seats available."}
	errContention        = &Error{Code: CodeConflict, Message: "too much contention on this conference, try again"}
	errProfileContention = &Error{Code: CodeConflict, Message: "profile was modified concurrently, try again"}
	errAuthRequired      = &Error{Code: CodeUnauthorized, Message: "Authorization required"}
)

func notFound(kind, key string) *Error {
	return Errorf(CodeNotFound, "No %s found with key: %s", kind, key).WithMetadata("key", key)
}
