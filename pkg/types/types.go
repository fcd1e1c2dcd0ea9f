package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	IsAdmin   bool      `json:"is_admin" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// APIKey represents an API key for programmatic access
type APIKey struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey"`
	UserID      uuid.UUID  `json:"user_id" gorm:"not null"`
	Name        string     `json:"name" gorm:"not null"`
	KeyHash     string     `json:"-" gorm:"not null"`
	Permissions []string   `json:"permissions" gorm:"serializer:json"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	User        User       `json:"user" gorm:"foreignKey:UserID"`
}

// BeforeCreate generates a UUID for the API key ID
func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// PhotoStatus is the upload state of a stored photo
type PhotoStatus string

const (
	PhotoStatusPending   PhotoStatus = "PENDING"
	PhotoStatusUploading PhotoStatus = "UPLOADING"
	PhotoStatusCompleted PhotoStatus = "COMPLETED"
	PhotoStatusFailed    PhotoStatus = "FAILED"
)

// Photo is the durable record of an uploaded photo
type Photo struct {
	ID          uuid.UUID      `json:"id" gorm:"primaryKey"`
	UserID      uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	SessionID   *string        `json:"session_id,omitempty" gorm:"index"`
	Filename    string         `json:"filename" gorm:"not null"`
	FileSize    int64          `json:"file_size" gorm:"not null"`
	ContentType string         `json:"content_type"`
	StorageKey  string         `json:"-" gorm:"not null"`
	Status      PhotoStatus    `json:"status" gorm:"not null;default:PENDING"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate generates a UUID for the photo ID
func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsDownloadable reports whether the photo's bytes are fully stored
func (p *Photo) IsDownloadable() bool {
	return p.Status == PhotoStatusCompleted && p.StorageKey != ""
}

// AuthToken represents a JWT token
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// CreateSessionRequest starts an upload session for the caller
type CreateSessionRequest struct {
	TotalCount int `json:"totalCount" binding:"required"`
}

// UploadFailedRequest reports a failed photo upload
type UploadFailedRequest struct {
	Reason string `json:"reason"`
}

// BatchDownloadRequest asks for a ZIP archive of photos
type BatchDownloadRequest struct {
	PhotoIDs []string `json:"photoIds"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
