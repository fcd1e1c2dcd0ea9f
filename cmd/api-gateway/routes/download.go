package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// DownloadRoutes sets up batch photo download
func DownloadRoutes(api *gin.RouterGroup, authService middleware.AuthServiceInterface, assembler BatchPreparer) {
	photos := api.Group("/photos")
	photos.Use(middleware.AuthMiddleware(authService))
	photos.POST("/download-batch", handleBatchDownload(assembler))
}

// handleBatchDownload streams the requested photos as one ZIP archive.
// Every validation error is answered before the first archive byte is sent.
func handleBatchDownload(assembler BatchPreparer) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		var req types.BatchDownloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "Invalid request format")
			return
		}

		ctx := c.Request.Context()
		batch, err := assembler.Prepare(ctx, req.PhotoIDs, user.ID.String())
		if err != nil {
			respondError(c, err)
			return
		}

		filename := fmt.Sprintf("photos-%s.zip", time.Now().UTC().Format("20060102-150405"))
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("X-Photo-Count", strconv.Itoa(len(batch.Entries())))
		c.Status(http.StatusOK)

		written, err := batch.WriteTo(ctx, c.Writer)
		if err != nil {
			log.Error().
				Err(err).
				Str("user_id", user.ID.String()).
				Int64("written", written).
				Msg("Batch download interrupted")
			// the status line is already out; drop the connection so the client sees a failure
			panic(http.ErrAbortHandler)
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Int("photos", len(batch.Entries())).
			Int64("bytes", written).
			Msg("Batch download served")
	}
}
