package apperr

import (
	"fmt"
	"net/http"
)

// Kind enumerates the closed set of failure classes the service reports.
type Kind int

const (
	Validation Kind = iota
	CSRF
	PKCE
	Authentication
	Token
	Authorization
	NotFound
	Conflict
	RateLimit
	ExternalAPI
	Database
	Configuration
)

// kindInfo fixes the machine code and default HTTP status per kind.
var kindInfo = map[Kind]struct {
	code   string
	status int
}{
	Validation:     {"VALIDATION_ERROR", http.StatusBadRequest},
	CSRF:           {"CSRF_VALIDATION_FAILED", http.StatusBadRequest},
	PKCE:           {"PKCE_VALIDATION_FAILED", http.StatusBadRequest},
	Authentication: {"AUTHENTICATION_REQUIRED", http.StatusUnauthorized},
	Token:          {"TOKEN_EXPIRED", http.StatusUnauthorized},
	Authorization:  {"FORBIDDEN", http.StatusForbidden},
	NotFound:       {"NOT_FOUND", http.StatusNotFound},
	Conflict:       {"CONFLICT", http.StatusConflict},
	RateLimit:      {"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests},
	ExternalAPI:    {"EXTERNAL_API_ERROR", http.StatusBadGateway},
	Database:       {"DATABASE_ERROR", http.StatusInternalServerError},
	Configuration:  {"CONFIGURATION_ERROR", http.StatusInternalServerError},
}

// Code returns the fixed machine code for the kind.
func (k Kind) Code() string {
	return kindInfo[k].code
}

// Status returns the default HTTP status for the kind.
func (k Kind) Status() int {
	return kindInfo[k].status
}

// Error is the explicit failure value returned by every fallible operation
// in the publishing core. Details are optional operator context and pass
// through the sanitizer before ever leaving the process.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches a details payload and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}
