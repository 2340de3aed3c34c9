package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrConversationNotFound is returned when the submit target names a
// conversation that does not exist or is not owned by the caller.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrConversationBusy is returned when a conversation's pending turn queue
// is full. The caller should retry after in-flight turns drain.
var ErrConversationBusy = errors.New("conversation has too many pending turns")

// ValidationError rejects a submission before any side effect occurs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// PersistenceError wraps a store read/write failure. The pipeline aborts at
// the step where it occurred; earlier writes are not rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ImageUploadError wraps an image store failure. It aborts the pipeline
// before the message referencing the image is written.
type ImageUploadError struct {
	Err error
}

func (e *ImageUploadError) Error() string {
	return fmt.Sprintf("image upload error: %v", e.Err)
}

func (e *ImageUploadError) Unwrap() error {
	return e.Err
}
