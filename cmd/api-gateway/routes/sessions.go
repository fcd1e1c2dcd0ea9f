package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	apitypes "github.com/reena96/picstormai-sub001/cmd/api-gateway/types"
	sessionaccess "github.com/reena96/picstormai-sub001/internal/middleware"
	"github.com/reena96/picstormai-sub001/internal/session"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// SessionRoutes sets up upload session lifecycle, progress and push routes
func SessionRoutes(api *gin.RouterGroup, authService middleware.AuthServiceInterface, sessions SessionServiceInterface, hub Subscriber, stream StreamConfig) {
	requireAuth := middleware.AuthMiddleware(authService)
	requireOwner := sessionaccess.SessionAccessMiddleware(sessions)

	group := api.Group("/upload/sessions")
	group.Use(requireAuth)
	{
		group.POST("", handleCreateSession(sessions))
		group.GET("/active", handleListActiveSessions(sessions))
		group.GET("/notifications/stream", handleNotificationStream(hub, stream))

		group.GET("/:id", requireOwner, handleGetSession())
		group.DELETE("/:id", requireOwner, handleCancelSession(sessions))
		group.GET("/:id/stream", requireOwner, handleSessionStream(sessions, hub, stream))
		group.POST("/:id/photos/:photoId/complete", requireOwner, handleUploadCompleted(sessions))
		group.POST("/:id/photos/:photoId/fail", requireOwner, handleUploadFailed(sessions))
	}

	api.GET("/ws/sessions/:id", requireAuth, requireOwner, handleSessionWebSocket(sessions, hub, stream))
}

func handleCreateSession(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		var req types.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "totalCount must be a positive integer")
			return
		}

		snap, err := sessions.CreateSession(c.Request.Context(), user.ID.String(), req.TotalCount)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Upload session created",
			Data:    snap,
		})
	}
}

func handleListActiveSessions(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		active := sessions.ListActiveForUser(c.Request.Context(), user.ID.String())
		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data: apitypes.SessionListResponse{
				Sessions: active,
				Count:    len(active),
			},
		})
	}
}

func handleGetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    currentSession(c),
		})
	}
}

func handleCancelSession(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := sessions.ExpireSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Upload session cancelled",
			Data:    snap,
		})
	}
}

func handleUploadCompleted(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := sessions.ApplyUploadCompleted(c.Request.Context(), c.Param("id"), c.Param("photoId"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    snap,
		})
	}
}

func handleUploadFailed(sessions SessionServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.UploadFailedRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondBadRequest(c, "Invalid request format")
				return
			}
		}

		snap, err := sessions.RecordUploadFailed(c.Request.Context(), c.Param("id"), c.Param("photoId"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    snap,
		})
	}
}

// currentSession returns the snapshot loaded by the session access middleware
func currentSession(c *gin.Context) session.Snapshot {
	return c.MustGet(sessionaccess.SessionKey).(session.Snapshot)
}
