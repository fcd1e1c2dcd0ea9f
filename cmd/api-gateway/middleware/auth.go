package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/pkg/types"
)

// UserKey is the gin context key holding the authenticated *types.User
const UserKey = "user"

// AuthMiddleware validates JWT tokens and API keys.
//
// Accepted credentials, in order: "Authorization: Bearer <jwt>",
// "Authorization: ApiKey <key>", the X-API-Key header, and a ?token= query
// parameter holding a JWT for EventSource and WebSocket clients, which
// cannot set headers.
func AuthMiddleware(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authenticate(c, authService)
		if err != nil || user == nil {
			if err != nil {
				log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Authentication failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "unauthorized",
			})
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// authenticate returns a nil user and nil error when no credentials were sent
func authenticate(c *gin.Context, authService AuthServiceInterface) (*types.User, error) {
	ctx := c.Request.Context()

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			return authService.ValidateToken(ctx, strings.TrimPrefix(authHeader, "Bearer "))
		case strings.HasPrefix(authHeader, "ApiKey "):
			user, _, err := authService.ValidateAPIKey(ctx, strings.TrimPrefix(authHeader, "ApiKey "))
			return user, err
		}
	}

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		user, _, err := authService.ValidateAPIKey(ctx, apiKey)
		return user, err
	}

	if token := c.Query("token"); token != "" {
		return authService.ValidateToken(ctx, token)
	}

	return nil, nil
}

// GetUserFromContext extracts the authenticated user from gin context
func GetUserFromContext(c *gin.Context) (*types.User, bool) {
	user, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	typedUser, ok := user.(*types.User)
	return typedUser, ok
}
