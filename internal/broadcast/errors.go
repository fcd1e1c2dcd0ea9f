package broadcast

import "errors"

var (
	// ErrHubClosed is returned by Publish after the hub has shut down
	ErrHubClosed = errors.New("broadcast hub is closed")

	// ErrUnknownMessageType is returned when decoding an envelope of an unsupported type
	ErrUnknownMessageType = errors.New("unknown message type")
)
