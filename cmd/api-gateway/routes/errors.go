package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/auth"
	"github.com/reena96/picstormai-sub001/internal/download"
	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/internal/session"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidSessionArgument),
		errors.Is(err, download.ErrEmptyBatchRequest),
		errors.Is(err, download.ErrBatchLimitExceeded),
		errors.Is(err, photo.ErrInvalidUpload):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrBatchSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, photo.ErrNotFound),
		errors.Is(err, auth.ErrAPIKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, photo.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, photo.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountDisabled):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal errors are logged and
// their details withheld from the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)

	resp := types.APIResponse{Success: false, Error: err.Error()}

	var resolutionErr *download.PhotoResolutionFailedError
	if errors.As(err, &resolutionErr) {
		resp.Data = gin.H{"photoId": resolutionErr.PhotoID}
	}

	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
		resp.Error = "Internal server error"
	}

	c.AbortWithStatusJSON(status, resp)
}

func respondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, types.APIResponse{
		Success: false,
		Error:   message,
	})
}
