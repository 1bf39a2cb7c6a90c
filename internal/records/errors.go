package records

import "errors"

var (
	// ErrValidation marks a document whose mandatory fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateKey is returned by stores when a uniqueness constraint rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrExtraction wraps any failure of the external extraction step.
	ErrExtraction = errors.New("extraction failed")
	// ErrNotFound is returned for unknown candidate or job ids.
	ErrNotFound = errors.New("not found")
)
