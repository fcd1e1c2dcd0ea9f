package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	"github.com/reena96/picstormai-sub001/pkg/types"
)

// AuthRoutes sets up authentication-related routes
func AuthRoutes(api *gin.RouterGroup, authService AuthServiceInterface) {
	auth := api.Group("/auth")

	// Public routes
	auth.POST("/register", handleRegister(authService))
	auth.POST("/login", handleLogin(authService))

	// Protected routes
	authenticated := auth.Group("/")
	authenticated.Use(middleware.AuthMiddleware(authService))
	authenticated.POST("/api-keys", handleCreateAPIKey(authService))
	authenticated.GET("/api-keys", handleListAPIKeys(authService))
	authenticated.DELETE("/api-keys/:id", handleRevokeAPIKey(authService))
}

func handleRegister(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		user, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "User registered successfully",
			Data: gin.H{
				"id":       user.ID,
				"username": user.Username,
				"email":    user.Email,
			},
		})
	}
}

func handleLogin(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		authToken, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "invalid credentials",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Login successful",
			Data:    authToken,
		})
	}
}

func handleCreateAPIKey(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := middleware.GetUserFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, types.APIResponse{Success: false, Error: "unauthorized"})
			return
		}

		var req struct {
			Name        string   `json:"name" binding:"required"`
			Permissions []string `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		apiKey, keyValue, err := authService.CreateAPIKey(c.Request.Context(), user.ID, req.Name, req.Permissions)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "API key created successfully",
			Data: gin.H{
				"api_key": apiKey,
				"key":     keyValue, // Only shown once
			},
		})
	}
}

func handleListAPIKeys(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := middleware.GetUserFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, types.APIResponse{Success: false, Error: "unauthorized"})
			return
		}

		apiKeys, err := authService.ListAPIKeys(c.Request.Context(), user.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    apiKeys,
		})
	}
}

func handleRevokeAPIKey(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := middleware.GetUserFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, types.APIResponse{Success: false, Error: "unauthorized"})
			return
		}

		keyUUID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			respondBadRequest(c, "invalid API key ID format")
			return
		}

		if err := authService.RevokeAPIKey(c.Request.Context(), keyUUID, user.ID); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "API key revoked successfully",
		})
	}
}
