package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	"github.com/reena96/picstormai-sub001/cmd/api-gateway/routes"
	apitypes "github.com/reena96/picstormai-sub001/cmd/api-gateway/types"
	"github.com/reena96/picstormai-sub001/internal/auth"
	"github.com/reena96/picstormai-sub001/internal/broadcast"
	"github.com/reena96/picstormai-sub001/internal/common"
	"github.com/reena96/picstormai-sub001/internal/download"
	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/internal/session"
	"github.com/reena96/picstormai-sub001/internal/storage"
	"github.com/reena96/picstormai-sub001/pkg/config"
)

const serviceName = "photo-api-gateway"

// pinger is anything the health check can ping
type pinger interface {
	Ping(ctx context.Context) error
}

// services holds everything the router needs
type services struct {
	auth      routes.AuthServiceInterface
	sessions  routes.SessionServiceInterface
	hub       routes.Subscriber
	assembler routes.BatchPreparer
	photos    routes.PhotoLibrary
	stream    routes.StreamConfig
	health    map[string]pinger
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting photo API gateway")

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize cache. Only the redis broadcast mode needs it.
	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		if cfg.Broadcast.Mode == "redis" {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		cache = nil
	}
	defer cache.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize storage
	blobs, err := storage.NewStorageFactory(&cfg.Storage).CreateStorage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Progress fan-out
	hub := broadcast.NewHub(
		broadcast.WithSubscriberBuffer(cfg.Broadcast.SubscriberBuffer),
		broadcast.WithSendTimeout(cfg.Broadcast.SendTimeout),
	)
	var publisher broadcast.Publisher = hub
	if cfg.Broadcast.Mode == "redis" {
		relay := broadcast.NewRedisRelay(cache.Client(), hub, cfg.Broadcast.RedisChannelPrefix)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Redis relay stopped unexpectedly")
			}
		}()
	}

	// Upload sessions
	registry := session.NewRegistry()
	sessionService := session.NewService(registry, publisher)
	sweeper := session.NewSweeper(sessionService, session.PolicyFromConfig(cfg.Sessions), cfg.Sessions.SweepInterval)
	go sweeper.Run(ctx)

	// Photo records and bytes
	photoRepo := photo.NewRepository(db.DB)

	// Batch downloads
	downloadOpts, err := download.OptionsFromConfig(cfg.Download)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid download configuration")
	}
	assembler := download.NewAssembler(
		photo.NewResolver(photoRepo, blobs),
		photo.NewOpener(blobs),
		downloadOpts,
	)

	health := map[string]pinger{"database": db}
	if cache != nil {
		health["redis"] = cache
	}

	router := setupRouter(services{
		auth:      auth.NewService(db, cache, &cfg.Auth),
		sessions:  sessionService,
		hub:       hub,
		assembler: assembler,
		photos:    photo.NewLibrary(photoRepo, blobs),
		stream:    routes.StreamConfig{HeartbeatInterval: cfg.Broadcast.HeartbeatInterval},
		health:    health,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Open streams end when the hub closes; Shutdown then waits for the rest
	stop()
	hub.Close()

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}

	registry.Close()
}

func setupRouter(svc services) *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	router.GET("/health", handleHealth(svc.health))

	api := router.Group("/api/v1")
	routes.AuthRoutes(api, svc.auth)
	routes.SessionRoutes(api, svc.auth, svc.sessions, svc.hub, svc.stream)
	routes.SessionPhotoRoutes(api, svc.auth, svc.sessions, svc.photos)
	routes.DownloadRoutes(api, svc.auth, svc.assembler)

	return router
}

func handleHealth(deps map[string]pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := apitypes.HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Timestamp: time.Now().UTC(),
			Services:  make(map[string]string, len(deps)),
		}
		code := http.StatusOK

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				status.Services[name] = "unhealthy"
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Services[name] = "healthy"
		}

		c.JSON(code, status)
	}
}
