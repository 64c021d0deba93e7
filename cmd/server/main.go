package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/echogram/api/internal/auth"
	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/config"
	"github.com/echogram/api/internal/handler"
	"github.com/echogram/api/internal/middleware"
	"github.com/echogram/api/internal/pipeline"
	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/internal/store"
	"github.com/echogram/api/internal/worker"
	ws "github.com/echogram/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	musicClient := client.NewElevenLabsClient(&cfg.ElevenLabs)

	// Initialize R2 client (optional - blobs fall back to Redis)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, storing blobs in Redis")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize store and services
	var st store.Store
	if r2Client != nil {
		st = store.NewRedisStore(redisClient, r2Client)
	} else {
		st = store.NewRedisStore(redisClient, nil)
	}
	enqueuer := service.NewAsynqEnqueuer(asynqClient)
	generationService := service.NewGenerationService(st, enqueuer)

	// Initialize handlers
	postHandler := handler.NewPostHandler(generationService, validate)
	commentHandler := handler.NewCommentHandler(generationService, validate, postHandler)
	mediaHandler := handler.NewMediaHandler(generationService)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    12 * 1024 * 1024, // headroom above the 10MB image limit
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai":     openaiClient.IsConfigured(),
				"elevenlabs": musicClient.IsConfigured(),
				"r2":         r2Client != nil,
				"auth":       jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Public read routes
	app.Get("/api/posts", rateLimiter.FeedLimit(cfg.RateLimit.FeedPerMin), postHandler.Feed)
	app.Get("/api/posts/:postId", postHandler.Get)
	app.Get("/api/posts/:postId/status", postHandler.Status)
	app.Get("/api/posts/:postId/comments", commentHandler.List)
	app.Get("/api/comments/:commentId/status", commentHandler.Status)
	app.Get("/api/images/:id", mediaHandler.Image)
	app.Get("/api/audio/:id", mediaHandler.Audio)

	// Authenticated write routes
	api := app.Group("/api", apiAuthMiddleware)
	api.Post("/posts", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), postHandler.Create)
	api.Post("/posts/:postId/recreate", rateLimiter.RecreateLimit(cfg.RateLimit.RecreatePerHour), postHandler.Recreate)
	api.Delete("/posts/:postId", postHandler.Delete)
	api.Post("/posts/:postId/comments", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), commentHandler.Create)
	api.Post("/comments/:commentId/recreate", rateLimiter.RecreateLimit(cfg.RateLimit.RecreatePerHour), commentHandler.Recreate)
	api.Delete("/posts/:postId/comments/:commentId", commentHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/entities/:entityId", websocket.New(func(c *websocket.Conn) {
		entityID := c.Params("entityId")
		hub.HandleConnection(c, entityID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, st, openaiClient, musicClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	st store.Store,
	openaiClient *client.OpenAIClient,
	musicClient *client.ElevenLabsClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"generate": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analyzer := pipeline.NewAnalyzer(openaiClient, cfg.OpenAI.Model, time.Duration(cfg.Pipeline.AnalysisTimeoutSec)*time.Second)
	synthesizer := pipeline.NewSynthesizer(openaiClient, cfg.OpenAI.FastModel, time.Duration(cfg.Pipeline.SynthesisTimeoutSec)*time.Second)
	morpher := pipeline.NewMorpher(openaiClient, openaiClient, cfg.OpenAI.Model, time.Duration(cfg.Pipeline.MorphTimeoutSec)*time.Second)
	traces := pipeline.NewTraceWriter(cfg.Pipeline.TraceDir)

	generateWorker := worker.NewGenerateWorker(st, analyzer, synthesizer, morpher, musicClient, hub, traces)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
