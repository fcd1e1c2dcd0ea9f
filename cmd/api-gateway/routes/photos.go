package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	apitypes "github.com/reena96/picstormai-sub001/cmd/api-gateway/types"
	sessionaccess "github.com/reena96/picstormai-sub001/internal/middleware"
	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// SessionPhotoRoutes sets up photo upload and listing within a session
func SessionPhotoRoutes(api *gin.RouterGroup, authService middleware.AuthServiceInterface, sessions SessionServiceInterface, library PhotoLibrary) {
	group := api.Group("/upload/sessions/:id/photos")
	group.Use(middleware.AuthMiddleware(authService), sessionaccess.SessionAccessMiddleware(sessions))
	{
		group.POST("", handleUploadPhoto(sessions, library))
		group.GET("", handleListSessionPhotos(library))
	}
}

// handleUploadPhoto stores a multipart "photo" file and counts it as an
// upload completion for the session.
func handleUploadPhoto(sessions SessionServiceInterface, library PhotoLibrary) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentSession(c).Status.IsTerminal() {
			c.AbortWithStatusJSON(http.StatusConflict, types.APIResponse{
				Success: false,
				Error:   "Upload session is no longer active",
			})
			return
		}

		user, _ := middleware.GetUserFromContext(c)

		file, header, err := c.Request.FormFile("photo")
		if err != nil {
			respondBadRequest(c, "No photo file provided")
			return
		}
		defer file.Close()

		sessionID := c.Param("id")
		stored, err := library.Upload(c.Request.Context(), user.ID, photo.Upload{
			SessionID:   sessionID,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		snap, err := sessions.ApplyUploadCompleted(c.Request.Context(), sessionID, stored.ID.String())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Photo uploaded",
			Data:    apitypes.PhotoUploadResponse{Photo: stored, Session: snap},
		})
	}
}

func handleListSessionPhotos(library PhotoLibrary) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		photos, err := library.ListBySession(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data: apitypes.PhotoListResponse{
				Photos: photos,
				Count:  len(photos),
			},
		})
	}
}
