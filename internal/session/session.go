package session

import (
	"time"
)

// Status is the lifecycle state of an upload session
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether no further events can change a session in this state
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// UploadSession is the live, mutable state of one multi-photo upload.
// It is only touched through Registry.Update, which holds the entry lock.
type UploadSession struct {
	ID             string
	OwnerID        string
	TotalCount     int
	UploadedCount  int
	Status         Status
	CreatedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    *time.Time
	ExpiredAt      *time.Time

	uploaded      map[string]struct{}
	uploadedOrder []string
	failed        map[string]struct{}
}

func newUploadSession(id, ownerID string, totalCount int, now time.Time) *UploadSession {
	return &UploadSession{
		ID:             id,
		OwnerID:        ownerID,
		TotalCount:     totalCount,
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		uploaded:       make(map[string]struct{}, totalCount),
		failed:         make(map[string]struct{}),
	}
}

// recordUpload counts photoID once. changed is false for terminal sessions and
// repeated photo ids; completed is true only for the event that finishes the session.
func (s *UploadSession) recordUpload(photoID string, now time.Time) (changed, completed bool) {
	if s.Status.IsTerminal() {
		return false, false
	}
	if _, seen := s.uploaded[photoID]; seen {
		return false, false
	}

	s.uploaded[photoID] = struct{}{}
	s.uploadedOrder = append(s.uploadedOrder, photoID)
	s.UploadedCount++
	s.LastActivityAt = now

	if s.UploadedCount == s.TotalCount {
		s.Status = StatusCompleted
		completedAt := now
		s.CompletedAt = &completedAt
		return true, true
	}
	return true, false
}

// recordFailure notes a failed attempt for photoID without touching progress
func (s *UploadSession) recordFailure(photoID string, now time.Time) bool {
	if s.Status.IsTerminal() {
		return false
	}
	s.failed[photoID] = struct{}{}
	s.LastActivityAt = now
	return true
}

// expire moves an active session to EXPIRED
func (s *UploadSession) expire(now time.Time) bool {
	if s.Status.IsTerminal() {
		return false
	}
	s.Status = StatusExpired
	expiredAt := now
	s.ExpiredAt = &expiredAt
	return true
}

// expireIfIdle expires the session only if it is still idle at now
func (s *UploadSession) expireIfIdle(now time.Time, idleTimeout time.Duration) bool {
	if now.Sub(s.LastActivityAt) < idleTimeout {
		return false
	}
	return s.expire(now)
}

// terminatedAt is when the session reached its terminal state
func (s *UploadSession) terminatedAt() (time.Time, bool) {
	switch {
	case s.CompletedAt != nil:
		return *s.CompletedAt, true
	case s.ExpiredAt != nil:
		return *s.ExpiredAt, true
	}
	return time.Time{}, false
}

// ProgressPercent is uploaded*100/total, computed in floating point
func ProgressPercent(uploaded, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(uploaded) * 100.0 / float64(total)
}

// Snapshot is an immutable copy of a session handed to callers
type Snapshot struct {
	ID               string     `json:"sessionId"`
	OwnerID          string     `json:"ownerId"`
	TotalCount       int        `json:"totalCount"`
	UploadedCount    int        `json:"uploadedCount"`
	FailedCount      int        `json:"failedCount"`
	UploadedPhotoIDs []string   `json:"uploadedPhotoIds"`
	Status           Status     `json:"status"`
	ProgressPercent  float64    `json:"progressPercent"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastActivityAt   time.Time  `json:"lastActivityAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ExpiredAt        *time.Time `json:"expiredAt,omitempty"`
}

func (s *UploadSession) snapshot() Snapshot {
	snap := Snapshot{
		ID:               s.ID,
		OwnerID:          s.OwnerID,
		TotalCount:       s.TotalCount,
		UploadedCount:    s.UploadedCount,
		FailedCount:      len(s.failed),
		UploadedPhotoIDs: append([]string(nil), s.uploadedOrder...),
		Status:           s.Status,
		ProgressPercent:  ProgressPercent(s.UploadedCount, s.TotalCount),
		CreatedAt:        s.CreatedAt,
		LastActivityAt:   s.LastActivityAt,
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		snap.CompletedAt = &t
	}
	if s.ExpiredAt != nil {
		t := *s.ExpiredAt
		snap.ExpiredAt = &t
	}
	if snap.UploadedPhotoIDs == nil {
		snap.UploadedPhotoIDs = []string{}
	}
	return snap
}
