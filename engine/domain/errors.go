package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's error kinds.
var (
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrDimensionMismatch     = errors.New("dimension mismatch")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// InvalidConfig reports a bad configuration parameter.
func InvalidConfig(field string, value any) *ValidationError {
	return NewValidationError(field, fmt.Sprint(value), ErrInvalidConfiguration)
}

// InvalidArg reports a bad call argument.
func InvalidArg(field string, value any) *ValidationError {
	return NewValidationError(field, fmt.Sprint(value), ErrInvalidArgument)
}

// DimensionError reports an embedding whose length differs from the index dimension.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// EmbeddingFailure marks err as an embedding adapter failure unless it already is one.
func EmbeddingFailure(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}

// GenerationFailure marks err as a generation adapter failure unless it already is one.
func GenerationFailure(err error) error {
	if err == nil || errors.Is(err, ErrGenerationUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
}
