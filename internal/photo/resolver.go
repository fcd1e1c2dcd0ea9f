package photo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/storage"
)

// PhotoRef is everything needed to stream one photo into an archive
type PhotoRef struct {
	ID          string
	StorageKey  string
	SizeBytes   int64
	Filename    string
	ContentType string
}

// Resolver turns a photo id into a PhotoRef the requester may read
type Resolver interface {
	Resolve(ctx context.Context, photoID, requesterID string) (PhotoRef, error)
}

// Opener opens the bytes behind a PhotoRef. The caller closes the reader.
type Opener interface {
	Open(ctx context.Context, ref PhotoRef) (io.ReadCloser, error)
}

// StoreResolver resolves photos from the database and confirms the bytes
// are present in blob storage.
type StoreResolver struct {
	repo    Repository
	storage storage.BlobStorage
}

// NewResolver creates a resolver over repo and blobs
func NewResolver(repo Repository, blobs storage.BlobStorage) *StoreResolver {
	return &StoreResolver{repo: repo, storage: blobs}
}

// Resolve returns ErrNotFound, ErrForbidden or ErrUnavailable (possibly wrapped)
func (r *StoreResolver) Resolve(ctx context.Context, photoID, requesterID string) (PhotoRef, error) {
	id, err := uuid.Parse(photoID)
	if err != nil {
		return PhotoRef{}, ErrNotFound
	}

	record, err := r.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PhotoRef{}, ErrNotFound
		}
		return PhotoRef{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if record.UserID.String() != requesterID {
		log.Warn().
			Str("photo_id", photoID).
			Str("requester_id", requesterID).
			Msg("Rejected access to photo owned by another user")
		return PhotoRef{}, ErrForbidden
	}

	if !record.IsDownloadable() {
		return PhotoRef{}, fmt.Errorf("%w: upload status is %s", ErrUnavailable, record.Status)
	}

	size, err := r.storage.GetSize(ctx, record.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Error().
				Str("photo_id", photoID).
				Str("key", record.StorageKey).
				Msg("Photo record points at missing object")
			return PhotoRef{}, fmt.Errorf("%w: stored object is missing", ErrUnavailable)
		}
		return PhotoRef{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return PhotoRef{
		ID:          record.ID.String(),
		StorageKey:  record.StorageKey,
		SizeBytes:   size,
		Filename:    record.Filename,
		ContentType: record.ContentType,
	}, nil
}

// StorageOpener reads photo bytes straight from blob storage
type StorageOpener struct {
	storage storage.BlobStorage
}

// NewOpener creates an opener over blobs
func NewOpener(blobs storage.BlobStorage) *StorageOpener {
	return &StorageOpener{storage: blobs}
}

// Open retrieves the object behind ref
func (o *StorageOpener) Open(ctx context.Context, ref PhotoRef) (io.ReadCloser, error) {
	rc, err := o.storage.Retrieve(ctx, ref.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo %s: %w", ref.ID, err)
	}
	return rc, nil
}
