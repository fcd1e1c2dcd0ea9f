package photo

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reena96/picstormai-sub001/internal/storage"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// trackingBlobs records which keys were written and removed
type trackingBlobs struct {
	storage.BlobStorage
	stored  []string
	deleted []string
}

func (b *trackingBlobs) Store(ctx context.Context, key string, content io.Reader, contentType string) error {
	b.stored = append(b.stored, key)
	return b.BlobStorage.Store(ctx, key, content, contentType)
}

func (b *trackingBlobs) Delete(ctx context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	return b.BlobStorage.Delete(ctx, key)
}

type failingCreate struct {
	Repository
	err error
}

func (r failingCreate) Create(ctx context.Context, photo *types.Photo) error {
	return r.err
}

func TestLibrary_UploadAndList(t *testing.T) {
	f := setupFixture(t)
	lib := NewLibrary(f.repo, f.blobs)

	first, err := lib.Upload(f.ctx, f.owner.ID, Upload{
		SessionID:   "s1",
		Filename:    "harbor.jpg",
		ContentType: "image/jpeg",
		Size:        6,
		Content:     strings.NewReader("harbor"),
	})
	require.NoError(t, err)
	assert.Equal(t, StorageKey(f.owner.ID, first.ID), first.StorageKey)
	assert.Equal(t, types.PhotoStatusCompleted, first.Status)
	require.NotNil(t, first.SessionID)
	assert.Equal(t, "s1", *first.SessionID)

	second, err := lib.Upload(f.ctx, f.owner.ID, Upload{SessionID: "s1", Filename: "dock.png", Size: 4, Content: strings.NewReader("dock")})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", second.ContentType)

	_, err = lib.Upload(f.ctx, f.owner.ID, Upload{SessionID: "s2", Filename: "elsewhere.jpg", Content: strings.NewReader("x")})
	require.NoError(t, err)

	photos, err := lib.ListBySession(f.ctx, f.owner.ID, "s1")
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.ElementsMatch(t, []string{first.ID.String(), second.ID.String()}, []string{photos[0].ID.String(), photos[1].ID.String()})

	none, err := lib.ListBySession(f.ctx, f.other.ID, "s1")
	require.NoError(t, err)
	assert.Empty(t, none)

	// stored photos are downloadable through the resolver
	ref, err := NewResolver(f.repo, f.blobs).Resolve(f.ctx, first.ID.String(), f.owner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "harbor.jpg", ref.Filename)
	assert.Equal(t, int64(6), ref.SizeBytes)
}

func TestLibrary_UploadRemovesObjectWhenRecordFails(t *testing.T) {
	f := setupFixture(t)
	blobs := &trackingBlobs{BlobStorage: f.blobs}
	lib := NewLibrary(failingCreate{Repository: f.repo, err: errors.New("database is read-only")}, blobs)

	_, err := lib.Upload(f.ctx, f.owner.ID, Upload{SessionID: "s1", Filename: "lost.jpg", Content: strings.NewReader("bytes")})
	require.Error(t, err)

	require.Len(t, blobs.stored, 1)
	assert.Equal(t, blobs.stored, blobs.deleted)
	exists, err := f.blobs.Exists(f.ctx, blobs.stored[0])
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLibrary_UploadRejectsMissingFilename(t *testing.T) {
	f := setupFixture(t)
	blobs := &trackingBlobs{BlobStorage: f.blobs}
	lib := NewLibrary(f.repo, blobs)

	_, err := lib.Upload(f.ctx, f.owner.ID, Upload{SessionID: "s1", Filename: "  ", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInvalidUpload)
	assert.Empty(t, blobs.stored)
}
