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
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/omvee/api/internal/client"
	"github.com/omvee/api/internal/config"
	"github.com/omvee/api/internal/handler"
	"github.com/omvee/api/internal/middleware"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/internal/store"
	"github.com/omvee/api/internal/worker"
	ws "github.com/omvee/api/internal/websocket"
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

	// Initialize storage and services
	redisStore := store.NewRedisStore(redisClient)
	openRouterClient := client.NewOpenRouterClient(&cfg.OpenRouter)
	if !openRouterClient.IsConfigured() {
		log.Printf("Warning: OpenRouter API key not configured")
	}

	jobService := service.NewJobService(redisStore)
	directorService := service.NewDirectorService(openRouterClient, validate, cfg.Pipeline.MinScenes, cfg.Pipeline.MaxScenes)
	sceneService := service.NewSceneService(redisStore, jobService, directorService, service.NewAsynqEnqueuer(asynqClient))
	projectService := service.NewProjectService(redisStore)

	// Initialize handlers
	sceneHandler := handler.NewSceneHandler(sceneService, validate)
	projectHandler := handler.NewProjectHandler(projectService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Project routes
	projects := api.Group("/projects", rateLimiter.ProjectsLimit(cfg.RateLimit.ProjectsPerMin))
	projects.Post("/", projectHandler.Create)
	projects.Get("/", projectHandler.List)
	projects.Get("/:id", projectHandler.Get)
	projects.Put("/:id/transcript", projectHandler.SetTranscript)
	projects.Put("/:id/reference-images", projectHandler.SetReferenceImages)

	// Scene pipeline routes
	projects.Post("/:id/scenes/select", rateLimiter.ScenesLimit(cfg.RateLimit.ScenesPerHour), sceneHandler.SelectScenes)
	projects.Post("/:id/scenes/generate-prompts", rateLimiter.ScenesLimit(cfg.RateLimit.ScenesPerHour), sceneHandler.GeneratePrompts)
	projects.Get("/:id/scenes", sceneHandler.ProjectScenes)
	projects.Put("/:id/scenes/:sceneId/regenerate", rateLimiter.RegenerateLimit(cfg.RateLimit.RegeneratePerMin), sceneHandler.RegeneratePrompt)

	// Job status polling
	api.Get("/scenes/jobs/:jobId/status", sceneHandler.JobStatus)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, redisStore, jobService, directorService, sceneService, hub)

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

func startWorkerServer(cfg *config.Config, st store.Store, jobs *service.JobService, director service.Director, scenes *service.SceneService, hub *ws.Hub) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"scenes": 10,
			},
		},
	)

	// Create workers
	selectWorker := worker.NewSceneSelectWorker(st, jobs, director, scenes, hub)
	promptWorker := worker.NewPromptFanoutWorker(st, jobs, director, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeSelectScenes, selectWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeGeneratePrompts, promptWorker.ProcessTask)

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
