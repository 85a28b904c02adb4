package types

import (
	"errors"
	"fmt"
	"time"
)

// Memory errors
var (
	// ErrOutOfOrderObservation is returned when an observation is not strictly
	// after the trajectory tail.
	ErrOutOfOrderObservation = errors.New("observation is out of order")

	// ErrAmbiguousEntityMatch marks a resolution decided by the identifier
	// fallback. It is reported and logged, never returned from ingestion.
	ErrAmbiguousEntityMatch = errors.New("ambiguous entity match")

	// ErrStoreTransactionFailure is returned when the graph store could not commit
	// a transaction after all retries. Memory state is unchanged.
	ErrStoreTransactionFailure = errors.New("graph store transaction failed")

	// ErrInvalidSpatialInput is returned for NaN, infinite or out-of-range
	// positions, orientations or mention geometry.
	ErrInvalidSpatialInput = errors.New("invalid spatial input")

	// ErrNodeNotFound is returned when a robot node does not exist.
	ErrNodeNotFound = errors.New("robot node not found")

	// ErrEntityNotFound is returned when a world node does not exist.
	ErrEntityNotFound = errors.New("world entity not found")
)

// ValidationError reports a malformed value.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches another ValidationError with the same message. A target with an
// empty message matches every ValidationError, so
// errors.Is(err, &ValidationError{}) asks whether err is any validation
// failure.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

func newValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// ObservationError carries the timestamps involved in an ordering failure.
type ObservationError struct {
	Time time.Time
	Tail time.Time
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("%s: time %s is not after tail %s",
		ErrOutOfOrderObservation, e.Time.Format(time.RFC3339Nano), e.Tail.Format(time.RFC3339Nano))
}

// Unwrap returns ErrOutOfOrderObservation.
func (e *ObservationError) Unwrap() error {
	return ErrOutOfOrderObservation
}

// NewObservationError creates an out-of-order error for t against tail.
func NewObservationError(t, tail time.Time) *ObservationError {
	return &ObservationError{Time: t, Tail: tail}
}

// SpatialInputError says which field of an observation was rejected.
type SpatialInputError struct {
	Field  string
	Reason string
}

func (e *SpatialInputError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidSpatialInput, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidSpatialInput.
func (e *SpatialInputError) Unwrap() error {
	return ErrInvalidSpatialInput
}

// NewSpatialInputError creates a SpatialInputError.
func NewSpatialInputError(field, reason string) *SpatialInputError {
	return &SpatialInputError{Field: field, Reason: reason}
}
