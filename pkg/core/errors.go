package core

import (
	"errors"
	"fmt"
	"net/url"
)

// Error represents a kiosk engine error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code: %s)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrConnection     ErrorType = "connection_error"
	ErrCredential     ErrorType = "credential_error"
	ErrTransport      ErrorType = "transport_error"
	ErrCatalog        ErrorType = "catalog_error"
	ErrPersistence    ErrorType = "persistence_error"
)

var (
	// ErrSessionClosed is returned when a session was destroyed while a
	// caller was waiting on it.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotConnected is returned by transport operations before Connect.
	ErrNotConnected = errors.New("transport not connected")
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewCredentialError creates a credential fetch error.
func NewCredentialError(message string, underlying error) *Error {
	return &Error{
		Type:    ErrCredential,
		Message: message,
		Err:     underlying,
	}
}

// NewCatalogError creates a menu catalog error.
func NewCatalogError(message string) *Error {
	return &Error{
		Type:    ErrCatalog,
		Message: message,
	}
}

// NewPersistenceError creates an order persistence error.
func NewPersistenceError(message string, underlying error) *Error {
	return &Error{
		Type:    ErrPersistence,
		Message: message,
		Err:     underlying,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrConnection, ErrCredential, ErrTransport, ErrPersistence:
		return true
	default:
		return false
	}
}

// ConnectionError reports a failed attempt to establish the realtime session.
// Stage is "credential" or "connect".
type ConnectionError struct {
	Stage string
	Err   error
}

// NewConnectionError wraps err as a connection failure at stage.
func NewConnectionError(stage string, err error) *ConnectionError {
	return &ConnectionError{Stage: stage, Err: err}
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", ErrConnection, e.Err)
	}
	return fmt.Sprintf("%s during %s: %v", ErrConnection, e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransportError wraps failures on the wire.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, RedactURL(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RedactURL strips user info and query parameters from raw.
func RedactURL(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	parsed.RawQuery = ""
	return parsed.String()
}
