package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/analysis"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/engine"
	"github.com/stemsplit/api/internal/handler"
	"github.com/stemsplit/api/internal/middleware"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/store"
	wk "github.com/stemsplit/api/internal/worker"
	ws "github.com/stemsplit/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		log.Fatalf("Failed to create storage root: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Feature extractor sidecar (optional)
	analyzer := analysis.NewClient(cfg.Analysis.URL, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)

	// Job store, engine cache, and the single separation worker
	jobStore := store.New()
	engines := engine.NewCache(engine.NewProcessFactory(cfg.Engine.Binary))
	worker := wk.New(jobStore, engines, hub, cfg.Retention)

	// Initialize services
	jobService := service.NewJobService(jobStore, worker, analyzer, cfg)
	analyzeService := service.NewAnalyzeService(analyzer)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	analyzeHandler := handler.NewAnalyzeHandler(analyzeService)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Limits.MaxUploadBytes),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", jobHandler.Health)

	// API routes
	api := app.Group("/api")
	api.Get("/health", jobHandler.Health)
	api.Get("/queue", jobHandler.Queue)

	submitHandlers := []fiber.Handler{jobHandler.Submit}
	analyzeHandlers := []fiber.Handler{analyzeHandler.Analyze}

	// Rate limiting (optional, per client IP)
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: Redis not available, rate limits fail open: %v", err)
		}
		rateLimiter := middleware.NewRateLimiter(redisClient)
		submitHandlers = []fiber.Handler{rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), jobHandler.Submit}
		analyzeHandlers = []fiber.Handler{rateLimiter.AnalyzeLimit(cfg.RateLimit.AnalyzePerMin), analyzeHandler.Analyze}
	}

	api.Post("/jobs", submitHandlers...)
	api.Get("/jobs/:id", jobHandler.Status)
	api.Get("/jobs/:id/outputs/+", jobHandler.Output)
	api.Post("/analyze", analyzeHandlers...)

	// WebSocket progress updates
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Static frontend
	app.Static("/", "./static", fiber.Static{Index: "index.html"})

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
