package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/lounge/internal/storage"
)

// Code classifies a billing error.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeInvalidTransition Code = "invalid_transition"
	CodeDeviceUnavailable Code = "device_unavailable"
	CodeDeviceConflict    Code = "device_conflict"
	CodeNotFound          Code = "not_found"
	CodeConsistency       Code = "consistency"
)

// Error is the typed error returned by the billing core.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context (ids, fields)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is matching by code.
var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrDeviceUnavailable = &Error{Code: CodeDeviceUnavailable, Message: "device unavailable"}
	ErrDeviceConflict    = &Error{Code: CodeDeviceConflict, Message: "device conflict"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConsistency       = &Error{Code: CodeConsistency, Message: "consistency violation"}
)

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates an error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation reports bad input rejected before any state change.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// InvalidTransition reports state machine misuse.
func InvalidTransition(entity, id, from, op string) *Error {
	return WithMetadata(CodeInvalidTransition,
		fmt.Sprintf("%s %s: cannot %s from status %s", entity, id, op, from),
		map[string]string{"id": id, "status": from, "operation": op})
}

// DeviceUnavailable reports a device that cannot be used (e.g. maintenance).
func DeviceUnavailable(deviceID, status string) *Error {
	return WithMetadata(CodeDeviceUnavailable,
		fmt.Sprintf("device %s is unavailable (status %s)", deviceID, status),
		map[string]string{"device_id": deviceID, "status": status})
}

// DeviceConflict reports an exclusivity violation on a device.
func DeviceConflict(deviceID, holderID string) *Error {
	return WithMetadata(CodeDeviceConflict,
		fmt.Sprintf("device %s is already in use by activity %s", deviceID, holderID),
		map[string]string{"device_id": deviceID, "activity_id": holderID})
}

// NotFound reports an unknown id.
func NotFound(kind, id string) *Error {
	return WithMetadata(CodeNotFound, fmt.Sprintf("%s %s not found", kind, id),
		map[string]string{"kind": kind, "id": id})
}

// Consistency reports a violated invariant. Callers treat it as a bug signal.
func Consistency(format string, args ...any) *Error {
	return New(CodeConsistency, fmt.Sprintf(format, args...))
}

// FromStorage maps storage sentinels onto the taxonomy and wraps everything else.
func FromStorage(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		e := NotFound(kind, id)
		e.Cause = err
		return e
	case errors.Is(err, storage.ErrDuplicateOpen):
		return Wrap(CodeConsistency, fmt.Sprintf("%s %s has more than one open record", kind, id), err)
	default:
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
}

// FromValidator converts validator output into a ValidationError.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Wrap(CodeValidation, "invalid request", err)
	}

	meta := make(map[string]string, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		meta[fe.Field()] = fe.Tag()
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return WithMetadata(CodeValidation, "invalid fields: "+strings.Join(fields, ", "), meta)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
