package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindgraph/internal/config"
	"mindgraph/internal/database"
	"mindgraph/internal/handlers"
	"mindgraph/internal/jobs"
	"mindgraph/internal/logging"
	"mindgraph/internal/middleware"
	"mindgraph/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting MindGraph Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Engine: %s)", cfg.Port, cfg.EngineURL)

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET environment variable is required")
	}

	// Connect to MongoDB
	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize database indexes: %v", err)
	}
	log.Println("✅ MongoDB connected and indexes ensured")

	// Initialize Redis (optional - for cross-instance event fan-out)
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (event fan-out disabled)", err)
			redisService = nil
		} else {
			pubsubService = services.NewPubSubService(redisService, uuid.New().String())
			log.Println("✅ Redis connected, pub/sub events enabled")
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - event fan-out disabled")
	}
	if redisService != nil {
		defer redisService.Close()
	}

	// Initialize Prometheus metrics
	metrics := services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Build the generation pipeline
	conversationService := services.NewConversationService(mongoDB)
	exportService := services.NewCorpusExportService(conversationService, cfg.ExportBatchSize)
	engineClient := services.NewEngineClient(cfg.EngineURL, cfg.EngineTimeout)
	taskStore := services.NewMongoTaskStore(mongoDB)
	registry := services.NewLeaseRegistry(mongoDB)
	graphStore := services.NewGraphStore(mongoDB)
	mapper := services.NewSnapshotMapper()

	submitter := services.NewTaskSubmitter(exportService, engineClient, taskStore,
		cfg.SubmitMaxAttempts, cfg.SubmitBackoffBase, services.SystemClock)

	poller := services.NewTaskPoller(engineClient, mapper, graphStore, taskStore, registry,
		pubsubService, metrics, cfg.PollInterval, cfg.PollMaxPolls, cfg.PollMaxConsecutiveErr, services.SystemClock)

	// Pollers outlive the request that spawned them; this context only ends
	// on shutdown, and the recovery sweep picks up whatever it cuts short.
	pollCtx, cancelPolling := context.WithCancel(context.Background())
	defer cancelPolling()

	generationService := services.NewGraphGenerationService(conversationService, submitter, poller,
		registry, graphStore, pubsubService, metrics, pollCtx)
	log.Println("✅ Graph generation pipeline initialized")

	// Background jobs
	scheduler := jobs.NewJobScheduler()
	recoveryDeadline := cfg.PollInterval*time.Duration(cfg.PollMaxPolls) + 10*time.Minute
	scheduler.Register("task_recovery", jobs.NewTaskRecoveryJob(taskStore, registry, 15*time.Minute, recoveryDeadline))
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "MindGraph v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("mindgraph")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	graphHandler := handlers.NewGraphHandler(generationService)

	// Health routes (unauthenticated)
	app.Get("/health", healthHandler.Ready)
	app.Get("/health/live", healthHandler.Live)
	app.Get("/health/ready", healthHandler.Ready)

	// Graph routes (authenticated)
	api := app.Group("/api/v1", middleware.RequireAuth(cfg.JWTSecret))
	graph := api.Group("/graph")
	graph.Post("/generate", graphHandler.Generate)
	graph.Post("/summary", graphHandler.GenerateSummary)
	graph.Get("/", graphHandler.GetGraph)
	graph.Get("/stats", graphHandler.GetStats)
	graph.Get("/summary", graphHandler.GetSummary)
	graph.Get("/edges", graphHandler.ListEdges)
	graph.Get("/clusters/:id/nodes", graphHandler.ListClusterNodes)
	graph.Delete("/nodes/:id", graphHandler.DeleteNode)
	graph.Delete("/clusters/:id", graphHandler.DeleteCluster)
	graph.Delete("/", graphHandler.DeleteGraph)
	log.Println("✅ Graph routes registered (/api/v1/graph/*)")

	// Start server in a goroutine so shutdown can be handled below
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()
	log.Printf("🌐 Server listening on port %s", cfg.Port)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}

	// Stop accepting new polls, then wait for in-flight pollers to notice
	cancelPolling()
	poller.Wait()

	log.Println("✅ Server stopped")
}
