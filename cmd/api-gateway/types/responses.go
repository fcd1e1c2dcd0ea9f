package types

import (
	"time"

	"github.com/reena96/picstormai-sub001/internal/session"
	pkgtypes "github.com/reena96/picstormai-sub001/pkg/types"
)

// SessionListResponse lists a user's active upload sessions
type SessionListResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
	Count    int                `json:"count"`
}

// PhotoUploadResponse is returned after a photo is stored and counted
type PhotoUploadResponse struct {
	Photo   *pkgtypes.Photo  `json:"photo"`
	Session session.Snapshot `json:"session"`
}

// PhotoListResponse lists the photos stored for a session
type PhotoListResponse struct {
	Photos []pkgtypes.Photo `json:"photos"`
	Count  int              `json:"count"`
}

// SnapshotEvent is the first message on a progress stream: the session state
// at the moment the client attached.
type SnapshotEvent struct {
	Type    string           `json:"type"`
	Session session.Snapshot `json:"session"`
}

// NewSnapshotEvent wraps a session snapshot for streaming
func NewSnapshotEvent(snap session.Snapshot) SnapshotEvent {
	return SnapshotEvent{Type: SnapshotEventType, Session: snap}
}

const SnapshotEventType = "SESSION_SNAPSHOT"

// HealthStatus is returned by the health check
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
