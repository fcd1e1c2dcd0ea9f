package photo

import "errors"

var (
	// ErrNotFound is returned when no live photo record has the requested id
	ErrNotFound = errors.New("photo not found")
	// ErrForbidden is returned when the requester does not own the photo
	ErrForbidden = errors.New("photo belongs to another user")
	// ErrUnavailable is returned when the photo exists but its bytes cannot be served
	ErrUnavailable = errors.New("photo unavailable")
	// ErrInvalidUpload is returned for uploads missing required fields
	ErrInvalidUpload = errors.New("invalid photo upload")
)
