package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/api/handlers"
	"github.com/pmprep/backend/internal/cache/redis"
	"github.com/pmprep/backend/internal/generation"
	"github.com/pmprep/backend/internal/knowledge"
	"github.com/pmprep/backend/internal/llm"
	"github.com/pmprep/backend/internal/metrics"
	"github.com/pmprep/backend/internal/middleware/ratelimit"
	"github.com/pmprep/backend/internal/middleware/security"
	"github.com/pmprep/backend/internal/middleware/validation"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/config"
	appLogger "github.com/pmprep/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting PM interview prep API server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The response cache is optional; a nil client disables caching without
	// branching at every call site.
	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer cacheClient.Close()
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	gateway := knowledge.NewGateway(sqliteClient, cfg.Generation.CorpusLimit)
	engine := generation.NewEngine(sqliteClient, gateway, llmClient)

	metrics.Init()

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	questionsHandler := handlers.NewQuestionsHandler(sqliteClient, cacheClient)
	answersHandler := handlers.NewAnswersHandler(sqliteClient, cacheClient, engine)
	adminHandler := handlers.NewAdminHandler(sqliteClient, cacheClient, llmClient)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient, cacheClient, engine)

	api := app.Group("/api/v1")

	api.Get("/questions", questionsHandler.ListQuestions)
	api.Get("/filters", questionsHandler.ListFilters)
	api.Get("/questions/filters", questionsHandler.ListFilters)
	api.Get("/questions/:id", questionsHandler.GetQuestion)

	api.Get("/questions/:id/answer", answersHandler.GetAnswer)
	api.Post("/questions/:id/answer", rateLimiter.Middleware(), answersHandler.GenerateAnswer)
	api.Post("/questions/ask", rateLimiter.Middleware(), answersHandler.Ask)

	api.Get("/admin/stats", adminHandler.Stats)
	api.Post("/admin/summaries/:id/rescore", rateLimiter.Middleware(), adminHandler.RescoreSummary)

	app.Use("/ws", wsHandler.UpgradeMiddleware())
	app.Get("/ws", wsHandler.Handler())

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	engine.Shutdown()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
