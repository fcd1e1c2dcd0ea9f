package session

import "errors"

var (
	// ErrInvalidSessionArgument is returned for bad creation or event input
	ErrInvalidSessionArgument = errors.New("invalid session argument")

	// ErrSessionNotFound is returned for ids the registry does not know
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrSessionExists is returned when creating a session under an id already in use
	ErrSessionExists = errors.New("upload session already exists")

	// ErrRegistryClosed is returned by Create after Close
	ErrRegistryClosed = errors.New("session registry is closed")
)
