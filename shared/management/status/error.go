package status

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Configuration indicates a missing or malformed client setup
	Configuration Type = 1

	// Authentication indicates that login failed or no credential is available
	Authentication Type = 2

	// Unauthorized indicates that the remote service answered 401
	Unauthorized Type = 3

	// RateLimited indicates that the remote service answered 429
	RateLimited Type = 4

	// Timeout indicates that a single request attempt exceeded the local deadline
	Timeout Type = 5

	// Network indicates that all retry attempts were exhausted
	Network Type = 6

	// Server indicates a 5xx answer from the remote service
	Server Type = 7

	// NotFound indicates that a peer is absent from the collection
	NotFound Type = 8

	// Validation indicates malformed caller input, detected before any network call
	Validation Type = 9

	// RequestFailed indicates a non-2xx answer the caller could not interpret
	RequestFailed Type = 10

	// Internal indicates a domain level failure that is not a transport error
	Internal Type = 11
)

// DefaultRetryAfter is used for RateLimited errors when the service sent no Retry-After header
const DefaultRetryAfter = 60 * time.Second

// Type is a type of the Error
type Type int32

// String returns a short name of the error type
func (t Type) String() string {
	switch t {
	case Configuration:
		return "configuration"
	case Authentication:
		return "authentication"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	case Server:
		return "server"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case RequestFailed:
		return "request_failed"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Sentinels to be used with errors.Is. They match any Error of the same Type in the chain.
var (
	ErrConfiguration  = &Error{ErrorType: Configuration}
	ErrAuthentication = &Error{ErrorType: Authentication}
	ErrUnauthorized   = &Error{ErrorType: Unauthorized}
	ErrRateLimited    = &Error{ErrorType: RateLimited}
	ErrTimeout        = &Error{ErrorType: Timeout}
	ErrNetwork        = &Error{ErrorType: Network}
	ErrServer         = &Error{ErrorType: Server}
	ErrNotFound       = &Error{ErrorType: NotFound}
	ErrValidation     = &Error{ErrorType: Validation}
	ErrRequestFailed  = &Error{ErrorType: RequestFailed}
	ErrInternal       = &Error{ErrorType: Internal}
)

// Error is the error returned by every layer of the client.
// Only the fields relevant for the ErrorType are set.
type Error struct {
	ErrorType Type
	Message   string

	// ID of the peer (NotFound)
	ID string
	// StatusCode of the HTTP answer (Server, RequestFailed)
	StatusCode int
	// RetryAfter as announced by the service (RateLimited)
	RetryAfter time.Duration
	// Field and Value of the rejected input (Validation)
	Field string
	Value string
	// Attempts made before giving up (Network)
	Attempts int

	// Err is the underlying cause, if any
	Err error
}

// Type returns the Type of the error
func (e *Error) Type() Type {
	return e.ErrorType
}

// Error is an error string
func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err != nil && e.ErrorType == Network {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an Error of the same Type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.ErrorType == e.ErrorType
}

// Errorf returns Error(ErrorType, fmt.Sprintf(format, a...)).
func Errorf(errorType Type, format string, a ...interface{}) error {
	return &Error{
		ErrorType: errorType,
		Message:   fmt.Sprintf(format, a...),
	}
}

// FromError returns Error, true if the provided error is of type of Error. nil, false otherwise
func FromError(err error) (s *Error, ok bool) {
	if err == nil {
		return nil, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the Type of the outermost Error in the chain, 0 if there is none
func TypeOf(err error) Type {
	e, ok := FromError(err)
	if !ok || e == nil {
		return 0
	}
	return e.ErrorType
}

// NewConfigurationError creates a new Error with Configuration type
func NewConfigurationError(format string, a ...interface{}) error {
	return Errorf(Configuration, format, a...)
}

// NewInvalidPasswordError creates a new Error with Authentication type for a rejected login
func NewInvalidPasswordError() error {
	return Errorf(Authentication, "invalid password")
}

// NewNoCredentialError creates a new Error with Authentication type when login is needed but impossible
func NewNoCredentialError() error {
	return Errorf(Authentication, "not authenticated and no credential available")
}

// NewUnauthorizedError creates a new Error with Unauthorized type for a 401 answer
func NewUnauthorizedError(method, path string) error {
	return &Error{
		ErrorType:  Unauthorized,
		Message:    fmt.Sprintf("unauthorized: %s %s", method, path),
		StatusCode: 401,
	}
}

// NewRateLimitedError creates a new Error with RateLimited type for a 429 answer
func NewRateLimitedError(retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Error{
		ErrorType:  RateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %s", retryAfter),
		StatusCode: 429,
		RetryAfter: retryAfter,
	}
}

// NewTimeoutError creates a new Error with Timeout type for an attempt that exceeded its deadline
func NewTimeoutError(timeout time.Duration, cause error) error {
	return &Error{
		ErrorType: Timeout,
		Message:   fmt.Sprintf("request timed out after %s", timeout),
		Err:       cause,
	}
}

// NewNetworkError creates a new Error with Network type wrapping the last failed attempt
func NewNetworkError(attempts int, cause error) error {
	return &Error{
		ErrorType: Network,
		Message:   fmt.Sprintf("request failed after %d attempt(s)", attempts),
		Attempts:  attempts,
		Err:       cause,
	}
}

// NewServerError creates a new Error with Server type for a 5xx answer
func NewServerError(statusCode int, message string) error {
	if message == "" {
		message = "server error"
	}
	return &Error{
		ErrorType:  Server,
		Message:    fmt.Sprintf("%s (status %d)", message, statusCode),
		StatusCode: statusCode,
	}
}

// NewRequestFailedError creates a new Error with RequestFailed type for an unexpected non-2xx answer
func NewRequestFailedError(statusCode int, message string) error {
	if message == "" {
		message = "request failed"
	}
	return &Error{
		ErrorType:  RequestFailed,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewPeerNotFoundError creates a new Error with NotFound type for a missing peer
func NewPeerNotFoundError(peerID string) error {
	return &Error{
		ErrorType: NotFound,
		Message:   fmt.Sprintf("peer not found: %s", peerID),
		ID:        peerID,
	}
}

// NewValidationError creates a new Error with Validation type for a rejected input field
func NewValidationError(field, value, reason string) error {
	return &Error{
		ErrorType: Validation,
		Message:   fmt.Sprintf("invalid %s %q: %s", field, value, reason),
		Field:     field,
		Value:     value,
	}
}

// NewCreatedPeerNotFoundError is returned when a create call succeeded but the new peer cannot be located
func NewCreatedPeerNotFoundError(name string) error {
	return &Error{
		ErrorType: Internal,
		Message:   "created record not found",
		ID:        name,
	}
}

// NewInternalError creates a new Error with Internal type wrapping cause
func NewInternalError(cause error, format string, a ...interface{}) error {
	return &Error{
		ErrorType: Internal,
		Message:   fmt.Sprintf(format, a...) + ": " + cause.Error(),
		Err:       cause,
	}
}
