package photo

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/storage"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// Upload describes photo bytes received for an upload session
type Upload struct {
	SessionID   string
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Library stores uploaded photo bytes and keeps their records
type Library struct {
	repo    Repository
	storage storage.BlobStorage
}

// NewLibrary creates a library over repo and blobs
func NewLibrary(repo Repository, blobs storage.BlobStorage) *Library {
	return &Library{repo: repo, storage: blobs}
}

// StorageKey is where a photo's bytes live in blob storage
func StorageKey(ownerID, photoID uuid.UUID) string {
	return path.Join("photos", ownerID.String(), photoID.String())
}

// Upload stores the bytes and records a completed photo. If the record cannot
// be written the stored object is removed again.
func (l *Library) Upload(ctx context.Context, ownerID uuid.UUID, upload Upload) (*types.Photo, error) {
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: missing filename", ErrInvalidUpload)
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	p := &types.Photo{
		ID:          uuid.New(),
		UserID:      ownerID,
		Filename:    filename,
		FileSize:    upload.Size,
		ContentType: contentType,
		Status:      types.PhotoStatusCompleted,
	}
	if upload.SessionID != "" {
		sessionID := upload.SessionID
		p.SessionID = &sessionID
	}
	p.StorageKey = StorageKey(ownerID, p.ID)

	if err := l.storage.Store(ctx, p.StorageKey, upload.Content, contentType); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	if err := l.repo.Create(ctx, p); err != nil {
		if delErr := l.storage.Delete(context.WithoutCancel(ctx), p.StorageKey); delErr != nil {
			log.Warn().Err(delErr).Str("key", p.StorageKey).Msg("Failed to remove orphaned photo object")
		}
		return nil, err
	}

	log.Info().
		Str("photo_id", p.ID.String()).
		Str("session_id", upload.SessionID).
		Int64("size", p.FileSize).
		Msg("Photo stored")

	return p, nil
}

// ListBySession returns the owner's photos stored for a session, oldest first
func (l *Library) ListBySession(ctx context.Context, ownerID uuid.UUID, sessionID string) ([]types.Photo, error) {
	return l.repo.ListBySession(ctx, ownerID, sessionID)
}
