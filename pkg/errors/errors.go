package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Every AppError wraps exactly one of them so callers can
// branch with errors.Is regardless of the message.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Error codes returned to API clients.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

type kind struct {
	sentinel error
	code     string
	status   int
	// Message shown for a bare sentinel. Empty means err.Error() is safe
	// to show to the client.
	message string
}

var kinds = []kind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound, "resource not found"},
	{ErrConflict, CodeConflict, http.StatusConflict, ""},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest, ""},
	{ErrServiceUnavail, CodeUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
	{ErrInternal, CodeInternal, http.StatusInternalServerError, "an internal error occurred"},
}

var internalKind = kinds[len(kinds)-1]

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError of the kind identified by sentinel. cause may be nil;
// otherwise it stays reachable through errors.Is and errors.As.
func New(sentinel error, message string, cause error) *AppError {
	k := kindOf(sentinel)
	wrapped := k.sentinel
	if cause != nil {
		wrapped = errors.Join(k.sentinel, cause)
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: wrapped}
}

// NotFound reports a missing resource, e.g. NotFound("cart snapshot", key).
func NotFound(resource, key string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s %q not found", resource, key), nil)
}

// InvalidInput reports a request the caller has to fix.
func InvalidInput(message string) *AppError {
	return New(ErrInvalidInput, message, nil)
}

// Conflict reports a request that does not fit the current state.
func Conflict(message string) *AppError {
	return New(ErrConflict, message, nil)
}

// Unavailable reports a backing store that cannot be reached.
func Unavailable(message string, err error) *AppError {
	return New(ErrServiceUnavail, message, err)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return New(ErrInternal, internalKind.message, err)
}

// Describe returns the client-facing code, HTTP status and message for err.
// AppErrors report their own fields; other errors are classified by the
// sentinel they wrap and only echo err.Error() when that is safe.
func Describe(err error) (code string, status int, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Status, appErr.Message
	}
	k := kindOf(err)
	message = k.message
	if message == "" {
		message = err.Error()
	}
	return k.code, k.status, message
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	_, status, _ := Describe(err)
	return status
}
