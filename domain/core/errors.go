package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// Search errors
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// Configuration errors
	ErrUnknownFeatureName = errors.New("unknown feature name")
	ErrUnknownClass       = errors.New("unknown class label")

	// Data errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrInvalidInstance  = errors.New("invalid instance")
)

// NewNotFoundError wraps ErrNotFound with the resource and id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewUnknownFeatureError reports a feature name missing from the resolution table
func NewUnknownFeatureError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownFeatureName, name)
}

// NewTimeoutError wraps the cause of an expired deadline
func NewTimeoutError(cause error) error {
	if cause == nil {
		return ErrTimeoutExceeded
	}
	return fmt.Errorf("%w: %w", ErrTimeoutExceeded, cause)
}

// IsNotFoundError checks for any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeoutError reports whether a bounded unit of work ran out of time
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeoutExceeded)
}

// IsConfigurationError reports errors that should stop a run before it starts
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownFeatureName) ||
		errors.Is(err, ErrUnknownClass)
}
