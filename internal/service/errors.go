package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when an external service call fails.
	ErrExternalService = errors.New("external service error")

	// ErrEmptyContent is returned when a document has no text to index.
	ErrEmptyContent = errors.New("empty content")
	// ErrUnsupportedFormat is returned when no extractor handles a MIME type.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtractionFailed is returned when an extractor cannot read a document.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrDimensionMismatch is returned when a vector length disagrees with the collection dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmbeddingFailure is returned when an embedding backend is unreachable or answers garbage.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrPartialIngestion marks an ingestion where some, but not all, chunks were persisted.
	ErrPartialIngestion = errors.New("partial ingestion failure")
	// ErrIngestionFailed marks an ingestion where no chunk was persisted.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrStoreUnavailable is returned when the vector store cannot be reached.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrCollectionNotFound is returned when an operation targets a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ValidationError against ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// IsClientError reports whether err was caused by bad caller input rather than
// a failing dependency.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrExtractionFailed)
}
