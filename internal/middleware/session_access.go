package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/session"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// SessionKey is the gin context key holding the session.Snapshot loaded by SessionAccessMiddleware
const SessionKey = "upload_session"

// SessionLookup finds upload sessions by id
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (session.Snapshot, error)
}

// SessionAccessMiddleware loads the session named by the :id route parameter
// and rejects callers who do not own it. It must run after authentication.
func SessionAccessMiddleware(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		if sessionID == "" {
			c.Next()
			return
		}

		user, ok := requestUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "unauthorized",
			})
			return
		}

		snap, err := sessions.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, types.APIResponse{
					Success: false,
					Error:   "upload session not found",
				})
				return
			}
			log.Error().
				Err(err).
				Str("session_id", sessionID).
				Msg("failed to load upload session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "Internal server error",
			})
			return
		}

		if snap.OwnerID != user.ID.String() {
			log.Warn().
				Str("session_id", sessionID).
				Str("user_id", user.ID.String()).
				Str("path", c.Request.URL.Path).
				Msg("request for another user's upload session")
			c.AbortWithStatusJSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "upload session belongs to another user",
			})
			return
		}

		c.Set(SessionKey, snap)
		c.Next()
	}
}

// requestUser reads the user stored by the authentication middleware
func requestUser(c *gin.Context) (*types.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*types.User)
	return user, ok && user != nil
}
