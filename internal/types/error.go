package types

import (
	"errors"
	"fmt"
)

// Error kinds distinguish the failure classes of the mutation and
// synchronization paths. Handlers map them to HTTP statuses; the downstream
// worker decides per kind whether to absorb, report, or re-raise.
const (
	KindValidation      = "validation"
	KindConflict        = "conflict"
	KindPathReservation = "path_reservation"
	KindNotFound        = "not_found"
	KindInvalidState    = "invalid_state"
	KindSinkUnavailable = "sink_unavailable"
)

type CustomError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Type    string            `json:"type"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// ValidationError reports malformed request fields. No event is recorded and
// nothing is dispatched when one of these is raised.
func ValidationError(fields map[string]string) *CustomError {
	return &CustomError{Code: 422, Message: "Unprocessable entity", Type: KindValidation, Fields: fields}
}

// ConflictError reports a stale lock version supplied by an optimistic caller.
func ConflictError(message string) *CustomError {
	return &CustomError{Code: 409, Message: message, Type: KindConflict}
}

// PathReservationError reports a base path owned by a different application.
func PathReservationError(basePath, owningApp string) *CustomError {
	return &CustomError{
		Code:    409,
		Message: fmt.Sprintf("%s is already reserved by %s", basePath, owningApp),
		Type:    KindPathReservation,
	}
}

// NotFoundError reports an entity that no longer resolves.
func NotFoundError(message string) *CustomError {
	return &CustomError{Code: 404, Message: message, Type: KindNotFound}
}

// InvalidStateError reports a dispatch for an edition in a state the target
// sink must never receive.
func InvalidStateError(message string) *CustomError {
	return &CustomError{Code: 500, Message: message, Type: KindInvalidState}
}

// SinkUnavailableError reports a synchronous downstream write that failed,
// naming the store so callers can tell which side is out of date.
func SinkUnavailableError(store string, err error) *CustomError {
	return &CustomError{
		Code:    500,
		Message: fmt.Sprintf("%s unavailable: %v", store, err),
		Type:    KindSinkUnavailable,
	}
}

// IsKind reports whether err is a CustomError of the given kind.
func IsKind(err error, kind string) bool {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Type == kind
	}
	return false
}
