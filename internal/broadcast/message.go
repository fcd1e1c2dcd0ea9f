package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the shape of a broadcast message
type MessageType string

const (
	TypePhotoUploaded          MessageType = "PHOTO_UPLOADED"
	TypePhotoFailed            MessageType = "PHOTO_FAILED"
	TypeSessionCompleted       MessageType = "SESSION_COMPLETED"
	TypeUploadSessionCompleted MessageType = "UPLOAD_SESSION_COMPLETED"
)

// Message is anything that can be published to a topic
type Message interface {
	MessageType() MessageType
}

// PhotoUploaded reports one more photo stored for a session
type PhotoUploaded struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"sessionId"`
	PhotoID         string      `json:"photoId"`
	UploadedCount   int         `json:"uploadedCount"`
	TotalCount      int         `json:"totalCount"`
	ProgressPercent float64     `json:"progressPercent"`
	Timestamp       time.Time   `json:"timestamp"`
}

func (PhotoUploaded) MessageType() MessageType { return TypePhotoUploaded }

// PhotoFailed reports a failed upload attempt. Counters are unchanged by it.
type PhotoFailed struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"sessionId"`
	PhotoID       string      `json:"photoId"`
	ErrorMessage  string      `json:"errorMessage"`
	UploadedCount int         `json:"uploadedCount"`
	FailedCount   int         `json:"failedCount"`
	TotalCount    int         `json:"totalCount"`
	Timestamp     time.Time   `json:"timestamp"`
}

func (PhotoFailed) MessageType() MessageType { return TypePhotoFailed }

// SessionCompleted is sent once, when the last expected photo lands
type SessionCompleted struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"sessionId"`
	UploadedCount int         `json:"uploadedCount"`
	FailedCount   int         `json:"failedCount"`
	TotalCount    int         `json:"totalCount"`
	Timestamp     time.Time   `json:"timestamp"`
}

func (SessionCompleted) MessageType() MessageType { return TypeSessionCompleted }

// Notification is a user-level message shown outside the upload screen
type Notification struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	SessionID string      `json:"sessionId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (Notification) MessageType() MessageType { return TypeUploadSessionCompleted }

// NewPhotoUploaded builds a progress message
func NewPhotoUploaded(sessionID, photoID string, uploaded, total int, percent float64) PhotoUploaded {
	return PhotoUploaded{
		Type:            TypePhotoUploaded,
		SessionID:       sessionID,
		PhotoID:         photoID,
		UploadedCount:   uploaded,
		TotalCount:      total,
		ProgressPercent: percent,
		Timestamp:       time.Now().UTC(),
	}
}

// NewPhotoFailed builds a failure message
func NewPhotoFailed(sessionID, photoID, reason string, uploaded, failed, total int) PhotoFailed {
	return PhotoFailed{
		Type:          TypePhotoFailed,
		SessionID:     sessionID,
		PhotoID:       photoID,
		ErrorMessage:  reason,
		UploadedCount: uploaded,
		FailedCount:   failed,
		TotalCount:    total,
		Timestamp:     time.Now().UTC(),
	}
}

// NewSessionCompleted builds the completion message
func NewSessionCompleted(sessionID string, uploaded, failed, total int) SessionCompleted {
	return SessionCompleted{
		Type:          TypeSessionCompleted,
		SessionID:     sessionID,
		UploadedCount: uploaded,
		FailedCount:   failed,
		TotalCount:    total,
		Timestamp:     time.Now().UTC(),
	}
}

// NewUploadCompleteNotification tells a user their session finished
func NewUploadCompleteNotification(sessionID string, uploaded, total int) Notification {
	return Notification{
		Type:      TypeUploadSessionCompleted,
		Message:   fmt.Sprintf("Upload complete: %d of %d photos uploaded", uploaded, total),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// DecodeMessage rebuilds a typed message from its JSON form
func DecodeMessage(messageType MessageType, data []byte) (Message, error) {
	var (
		msg Message
		err error
	)

	switch messageType {
	case TypePhotoUploaded:
		var m PhotoUploaded
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePhotoFailed:
		var m PhotoFailed
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeSessionCompleted:
		var m SessionCompleted
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeUploadSessionCompleted:
		var m Notification
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, messageType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", messageType, err)
	}
	return msg, nil
}
