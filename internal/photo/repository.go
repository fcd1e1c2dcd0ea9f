package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reena96/picstormai-sub001/pkg/types"
)

// Repository reads and writes photo records
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*types.Photo, error)
	Create(ctx context.Context, photo *types.Photo) error
	ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]types.Photo, error)
}

// GormRepository is the database-backed Repository
type GormRepository struct {
	db *gorm.DB
}

// NewRepository creates a repository over db
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// FindByID returns the photo or ErrNotFound. Soft-deleted photos are not found.
func (r *GormRepository) FindByID(ctx context.Context, id uuid.UUID) (*types.Photo, error) {
	var photo types.Photo
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&photo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return &photo, nil
}

// Create inserts a new photo record
func (r *GormRepository) Create(ctx context.Context, photo *types.Photo) error {
	if err := r.db.WithContext(ctx).Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// ListBySession returns the user's photos uploaded in a session, oldest first
func (r *GormRepository) ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]types.Photo, error) {
	var photos []types.Photo
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC").
		Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list session photos: %w", err)
	}
	return photos, nil
}
