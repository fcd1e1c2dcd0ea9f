package routes

import (
	"context"

	"github.com/google/uuid"

	"github.com/reena96/picstormai-sub001/internal/broadcast"
	"github.com/reena96/picstormai-sub001/internal/download"
	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/internal/session"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// AuthServiceInterface defines the account operations exposed over HTTP
type AuthServiceInterface interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.User, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.AuthToken, error)
	ValidateToken(ctx context.Context, token string) (*types.User, error)
	ValidateAPIKey(ctx context.Context, apiKey string) (*types.User, *types.APIKey, error)
	CreateAPIKey(ctx context.Context, userID uuid.UUID, name string, permissions []string) (*types.APIKey, string, error)
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*types.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error
}

// SessionServiceInterface defines the upload session operations
type SessionServiceInterface interface {
	CreateSession(ctx context.Context, ownerID string, totalCount int) (session.Snapshot, error)
	GetSession(ctx context.Context, sessionID string) (session.Snapshot, error)
	ListActiveForUser(ctx context.Context, ownerID string) []session.Snapshot
	ApplyUploadCompleted(ctx context.Context, sessionID, photoID string) (session.Snapshot, error)
	RecordUploadFailed(ctx context.Context, sessionID, photoID, reason string) (session.Snapshot, error)
	ExpireSession(ctx context.Context, sessionID string) (session.Snapshot, error)
}

// Subscriber attaches listeners to broadcast topics
type Subscriber interface {
	Subscribe(topic string) *broadcast.Subscription
}

// BatchPreparer validates batch download requests
type BatchPreparer interface {
	Prepare(ctx context.Context, photoIDs []string, requesterID string) (*download.Batch, error)
}

// PhotoLibrary stores uploaded photos and lists them per session
type PhotoLibrary interface {
	Upload(ctx context.Context, ownerID uuid.UUID, upload photo.Upload) (*types.Photo, error)
	ListBySession(ctx context.Context, ownerID uuid.UUID, sessionID string) ([]types.Photo, error)
}
