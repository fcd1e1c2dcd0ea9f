package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/broadcast"
)

// Service applies upload events to sessions and announces progress
type Service struct {
	registry  *Registry
	publisher broadcast.Publisher

	now   func() time.Time
	newID func() string
}

// NewService creates a session service backed by registry. Progress messages
// go to publisher; it may be nil when nobody listens.
func NewService(registry *Registry, publisher broadcast.Publisher) *Service {
	return &Service{
		registry:  registry,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Registry exposes the backing registry
func (s *Service) Registry() *Registry {
	return s.registry
}

// CreateSession starts an ACTIVE session expecting totalCount photos
func (s *Service) CreateSession(ctx context.Context, ownerID string, totalCount int) (Snapshot, error) {
	if ownerID == "" {
		return Snapshot{}, fmt.Errorf("%w: owner id is required", ErrInvalidSessionArgument)
	}
	if totalCount < 1 {
		return Snapshot{}, fmt.Errorf("%w: total count must be at least 1, got %d", ErrInvalidSessionArgument, totalCount)
	}

	snap, err := s.registry.Create(newUploadSession(s.newID(), ownerID, totalCount, s.now()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", snap.ID).
		Str("owner_id", ownerID).
		Int("total", totalCount).
		Msg("Upload session created")

	return snap, nil
}

// ApplyUploadCompleted records that photoID finished uploading. Repeated
// photo ids and events for terminal sessions leave the session unchanged.
func (s *Service) ApplyUploadCompleted(ctx context.Context, sessionID, photoID string) (Snapshot, error) {
	if photoID == "" {
		return Snapshot{}, fmt.Errorf("%w: photo id is required", ErrInvalidSessionArgument)
	}

	var changed, completed bool
	snap, err := s.registry.Update(sessionID, func(us *UploadSession) {
		changed, completed = us.recordUpload(photoID, s.now())
	})
	if err != nil {
		return Snapshot{}, err
	}

	if !changed {
		log.Debug().
			Str("session_id", sessionID).
			Str("photo_id", photoID).
			Str("status", string(snap.Status)).
			Msg("Ignored upload completion")
		return snap, nil
	}

	s.publish(ctx, broadcast.SessionTopic(snap.ID), broadcast.NewPhotoUploaded(
		snap.ID, photoID, snap.UploadedCount, snap.TotalCount, snap.ProgressPercent))

	if completed {
		log.Info().
			Str("session_id", snap.ID).
			Int("uploaded", snap.UploadedCount).
			Int("failed", snap.FailedCount).
			Msg("Upload session completed")

		s.publish(ctx, broadcast.SessionTopic(snap.ID), broadcast.NewSessionCompleted(
			snap.ID, snap.UploadedCount, snap.FailedCount, snap.TotalCount))
		s.publish(ctx, broadcast.UserTopic(snap.OwnerID), broadcast.NewUploadCompleteNotification(
			snap.ID, snap.UploadedCount, snap.TotalCount))
	}

	return snap, nil
}

// RecordUploadFailed announces a failed attempt for photoID. Progress counters
// and status stay as they are since the photo may still be retried.
func (s *Service) RecordUploadFailed(ctx context.Context, sessionID, photoID, reason string) (Snapshot, error) {
	if photoID == "" {
		return Snapshot{}, fmt.Errorf("%w: photo id is required", ErrInvalidSessionArgument)
	}

	var changed bool
	snap, err := s.registry.Update(sessionID, func(us *UploadSession) {
		changed = us.recordFailure(photoID, s.now())
	})
	if err != nil {
		return Snapshot{}, err
	}
	if !changed {
		return snap, nil
	}

	log.Warn().
		Str("session_id", snap.ID).
		Str("photo_id", photoID).
		Str("reason", reason).
		Msg("Photo upload failed")

	s.publish(ctx, broadcast.SessionTopic(snap.ID), broadcast.NewPhotoFailed(
		snap.ID, photoID, reason, snap.UploadedCount, snap.FailedCount, snap.TotalCount))

	return snap, nil
}

// ExpireSession moves an active session to EXPIRED without broadcasting
func (s *Service) ExpireSession(ctx context.Context, sessionID string) (Snapshot, error) {
	snap, _, err := s.expireWhen(sessionID, func(us *UploadSession) bool {
		return us.expire(s.now())
	})
	return snap, err
}

// expireIdle expires the session only if it saw no activity within
// idleTimeout of now. The check runs under the registry lock so an upload
// landing after a sweep picked the session keeps it alive.
func (s *Service) expireIdle(sessionID string, now time.Time, idleTimeout time.Duration) (bool, error) {
	_, expired, err := s.expireWhen(sessionID, func(us *UploadSession) bool {
		return us.expireIfIdle(now, idleTimeout)
	})
	return expired, err
}

func (s *Service) expireWhen(sessionID string, expire func(*UploadSession) bool) (Snapshot, bool, error) {
	var expired bool
	snap, err := s.registry.Update(sessionID, func(us *UploadSession) {
		expired = expire(us)
	})
	if err != nil {
		return Snapshot{}, false, err
	}

	if expired {
		log.Info().
			Str("session_id", snap.ID).
			Int("uploaded", snap.UploadedCount).
			Int("total", snap.TotalCount).
			Msg("Upload session expired")
	}
	return snap, expired, nil
}

// GetSession returns a snapshot of the session
func (s *Service) GetSession(ctx context.Context, sessionID string) (Snapshot, error) {
	return s.registry.Get(sessionID)
}

// ListActiveForUser returns the owner's active sessions, newest first
func (s *Service) ListActiveForUser(ctx context.Context, ownerID string) []Snapshot {
	return s.registry.ListActiveForUser(ownerID)
}

// publish never fails the caller: the state change already happened
func (s *Service) publish(ctx context.Context, topic string, msg broadcast.Message) {
	if s.publisher == nil {
		return
	}
	// Applied changes are announced even if the caller has gone away
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topic, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("type", string(msg.MessageType())).
			Msg("Failed to publish progress message")
	}
}
