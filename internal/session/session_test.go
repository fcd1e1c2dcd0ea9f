package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestUploadSession_RecordUpload(t *testing.T) {
	s := newUploadSession("s1", "owner", 2, testNow)

	changed, completed := s.recordUpload("p1", testNow.Add(time.Second))
	assert.True(t, changed)
	assert.False(t, completed)
	assert.Equal(t, 1, s.UploadedCount)
	assert.Equal(t, StatusActive, s.Status)
	assert.Nil(t, s.CompletedAt)
	assert.Equal(t, testNow.Add(time.Second), s.LastActivityAt)

	changed, completed = s.recordUpload("p1", testNow.Add(2*time.Second))
	assert.False(t, changed, "repeated photo id must not count twice")
	assert.False(t, completed)
	assert.Equal(t, 1, s.UploadedCount)
	assert.Equal(t, testNow.Add(time.Second), s.LastActivityAt)

	changed, completed = s.recordUpload("p2", testNow.Add(3*time.Second))
	assert.True(t, changed)
	assert.True(t, completed)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, testNow.Add(3*time.Second), *s.CompletedAt)

	changed, completed = s.recordUpload("p3", testNow.Add(4*time.Second))
	assert.False(t, changed, "completed session absorbs further events")
	assert.False(t, completed)
	assert.Equal(t, 2, s.UploadedCount)
}

func TestUploadSession_RecordFailure(t *testing.T) {
	s := newUploadSession("s1", "owner", 3, testNow)

	assert.True(t, s.recordFailure("p1", testNow))
	assert.True(t, s.recordFailure("p1", testNow))
	assert.Equal(t, 0, s.UploadedCount)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 1, s.snapshot().FailedCount)

	s.expire(testNow)
	assert.False(t, s.recordFailure("p2", testNow))
}

func TestUploadSession_Expire(t *testing.T) {
	s := newUploadSession("s1", "owner", 3, testNow)
	s.recordUpload("p1", testNow)

	assert.True(t, s.expire(testNow.Add(time.Minute)))
	assert.Equal(t, StatusExpired, s.Status)
	require.NotNil(t, s.ExpiredAt)
	assert.Nil(t, s.CompletedAt)

	assert.False(t, s.expire(testNow.Add(2*time.Minute)))
	assert.Equal(t, testNow.Add(time.Minute), *s.ExpiredAt)

	changed, _ := s.recordUpload("p2", testNow)
	assert.False(t, changed)

	at, terminal := s.terminatedAt()
	assert.True(t, terminal)
	assert.Equal(t, testNow.Add(time.Minute), at)
}

func TestUploadSession_ExpireIfIdle(t *testing.T) {
	s := newUploadSession("s1", "owner", 3, testNow)
	s.recordUpload("p1", testNow.Add(time.Minute))

	assert.False(t, s.expireIfIdle(testNow.Add(90*time.Second), time.Minute))
	assert.Equal(t, StatusActive, s.Status)

	assert.True(t, s.expireIfIdle(testNow.Add(2*time.Minute), time.Minute))
	assert.Equal(t, StatusExpired, s.Status)
}

func TestUploadSession_SnapshotIsDetached(t *testing.T) {
	s := newUploadSession("s1", "owner", 2, testNow)

	empty := s.snapshot()
	assert.NotNil(t, empty.UploadedPhotoIDs)
	assert.Empty(t, empty.UploadedPhotoIDs)

	s.recordUpload("p1", testNow)
	snap := s.snapshot()
	snap.UploadedPhotoIDs[0] = "tampered"

	s.recordUpload("p2", testNow)
	snap.CompletedAt = nil

	again := s.snapshot()
	assert.Equal(t, []string{"p1", "p2"}, again.UploadedPhotoIDs)
	assert.NotNil(t, again.CompletedAt)
	assert.Equal(t, StatusActive, snap.Status)
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name     string
		uploaded int
		total    int
		want     float64
	}{
		{"none", 0, 3, 0},
		{"one third", 1, 3, 100.0 / 3.0},
		{"two thirds", 2, 3, 200.0 / 3.0},
		{"all", 3, 3, 100},
		{"zero total", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ProgressPercent(tt.uploaded, tt.total), 1e-9)
		})
	}

	assert.InDelta(t, 33.333, ProgressPercent(1, 3), 0.001)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}
