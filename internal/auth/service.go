package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reena96/picstormai-sub001/internal/common"
	"github.com/reena96/picstormai-sub001/pkg/config"
	"github.com/reena96/picstormai-sub001/pkg/types"
	"github.com/reena96/picstormai-sub001/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("user with username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("user account is disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrAPIKeyExpired      = errors.New("API key has expired")
	ErrAPIKeyNotFound     = errors.New("API key not found")
	ErrUserNotFound       = errors.New("user not found")
)

const userCacheTTL = 10 * time.Minute

// Service handles authentication operations
type Service struct {
	db     *common.Database
	cache  *common.Cache
	config *config.AuthConfig
}

// NewService creates a new authentication service. cache may be nil.
func NewService(db *common.Database, cache *common.Cache, config *config.AuthConfig) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		config: config,
	}
}

func userCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req *types.RegisterRequest) (*types.User, error) {
	var existing types.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hashedPassword, err := utils.HashPassword(req.Password, s.config.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashedPassword,
		IsActive: true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User registered")

	user.Password = ""
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, req *types.LoginRequest) (*types.AuthToken, error) {
	var user types.User
	if err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateJWT(user.ID, s.config.JWTSecret, s.config.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &types.AuthToken{
		Token:     token,
		ExpiresAt: time.Now().Add(s.config.JWTExpiration),
		UserID:    user.ID,
	}, nil
}

// ValidateToken validates a JWT token and returns the user
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*types.User, error) {
	userID, err := utils.ValidateJWT(tokenString, s.config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var user types.User
	if err := s.cache.Get(ctx, userCacheKey(userID), &user); err == nil {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Password = ""
	if err := s.cache.Set(ctx, userCacheKey(userID), &user, userCacheTTL); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to cache user")
	}

	return &user, nil
}

// CreateAPIKey creates a new API key for a user. The raw key is only returned here.
func (s *Service) CreateAPIKey(ctx context.Context, userID uuid.UUID, name string, permissions []string) (*types.APIKey, string, error) {
	keyValue, err := utils.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate API key: %w", err)
	}

	apiKey := &types.APIKey{
		UserID:      userID,
		Name:        name,
		KeyHash:     utils.HashAPIKey(keyValue),
		Permissions: permissions,
		IsActive:    true,
	}

	if err := s.db.WithContext(ctx).Create(apiKey).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create API key: %w", err)
	}

	if err := s.db.WithContext(ctx).Preload("User").First(apiKey, "id = ?", apiKey.ID).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load API key: %w", err)
	}
	apiKey.User.Password = ""

	log.Info().Str("user_id", userID.String()).Str("key_id", apiKey.ID.String()).Msg("API key created")

	return apiKey, keyValue, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (s *Service) ValidateAPIKey(ctx context.Context, keyValue string) (*types.User, *types.APIKey, error) {
	keyHash := utils.HashAPIKey(keyValue)

	var apiKey types.APIKey
	if err := s.db.WithContext(ctx).Preload("User").Where("key_hash = ? AND is_active = ?", keyHash, true).First(&apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidAPIKey
		}
		return nil, nil, fmt.Errorf("failed to validate API key: %w", err)
	}

	if apiKey.ExpiresAt != nil && time.Now().After(*apiKey.ExpiresAt) {
		return nil, nil, ErrAPIKeyExpired
	}

	if !apiKey.User.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&types.APIKey{}).Where("id = ?", apiKey.ID).Update("last_used_at", now).Error; err != nil {
		log.Warn().Err(err).Str("key_id", apiKey.ID.String()).Msg("Failed to record API key usage")
	}
	apiKey.LastUsedAt = &now

	apiKey.User.Password = ""
	return &apiKey.User, &apiKey, nil
}

// ListAPIKeys lists API keys for a user
func (s *Service) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*types.APIKey, error) {
	var apiKeys []*types.APIKey
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&apiKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	return apiKeys, nil
}

// RevokeAPIKey deactivates an API key owned by userID
func (s *Service) RevokeAPIKey(ctx context.Context, keyID uuid.UUID, userID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&types.APIKey{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("is_active", false)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke API key: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	log.Info().Str("user_id", userID.String()).Str("key_id", keyID.String()).Msg("API key revoked")
	return nil
}
