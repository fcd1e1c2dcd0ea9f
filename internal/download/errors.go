package download

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatchRequest is returned when no photo ids were requested
	ErrEmptyBatchRequest = errors.New("no photos requested")
	// ErrBatchLimitExceeded is returned when too many distinct photos were requested
	ErrBatchLimitExceeded = errors.New("too many photos requested")
	// ErrBatchSizeExceeded is returned when the resolved photos are too large in total
	ErrBatchSizeExceeded = errors.New("requested photos exceed the download size limit")
	// ErrUnsupportedCompression is returned for unknown compression names
	ErrUnsupportedCompression = errors.New("unsupported compression")
)

// PhotoResolutionFailedError reports the photo that made a batch unresolvable.
// Reason wraps one of the photo package errors.
type PhotoResolutionFailedError struct {
	PhotoID string
	Reason  error
}

func (e *PhotoResolutionFailedError) Error() string {
	return fmt.Sprintf("failed to resolve photo %s: %v", e.PhotoID, e.Reason)
}

func (e *PhotoResolutionFailedError) Unwrap() error {
	return e.Reason
}
